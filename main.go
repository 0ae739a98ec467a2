package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"LIBRA-backend/internal/book_mgmt/books"
	"LIBRA-backend/internal/book_mgmt/fines"
	"LIBRA-backend/internal/book_mgmt/issues"
	"LIBRA-backend/internal/book_mgmt/reports"
	"LIBRA-backend/internal/librarians"
	"LIBRA-backend/internal/platform/auth"
	"LIBRA-backend/internal/platform/db"
	"LIBRA-backend/internal/platform/metrics"
	"LIBRA-backend/internal/platform/notify"
	"LIBRA-backend/internal/students"
)

// フロントのビルド出力を埋め込む
// "//go:embed public" ← これはビルドに必要なので消さないこと

// go:embed public
var embedded embed.FS

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	// 動作モード取得
	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if cfg.Mode != "dev" && cfg.Mode != "release" {
		fmt.Println("Usage: go run main.go [dev|release]")
		return
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	// リアルタイム通知（Redis未設定なら無効）
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Redis.Addr != "" {
		rn, err := notify.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("[WARN] redis unavailable, realtime notifications disabled: %v", err)
		} else {
			notifier = rn
			log.Printf("[INFO] connected to Redis: %s", cfg.Redis.Addr)
		}
	}

	m := metrics.New()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス・メトリクス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	secret := []byte(cfg.Auth.JWTSecret)

	studentSvc := students.NewService(conn, cfg.Auth.EmailDomain, notifier)
	librarianSvc := librarians.NewService(conn)
	authSvc := auth.NewService(conn, auth.NewStore(conn), studentSvc, librarianSvc, auth.Config{
		JWTSecret:   secret,
		TokenTTL:    time.Duration(cfg.Auth.TokenTTLHours) * time.Hour,
		EmailDomain: cfg.Auth.EmailDomain,
	})

	// /api/v2
	api := r.Group("/api/v2")
	auth.RegisterRoutes(api, authSvc)

	// 参照はログイン必須、更新系は librarian のみ
	protected := api.Group("", auth.RequireAuth(secret), librarianWrites())
	auth.RegisterProtectedRoutes(protected, authSvc)
	books.RegisterRoutes(protected, books.NewService(conn, notifier))
	students.RegisterRoutes(protected, studentSvc)
	librarians.RegisterRoutes(protected, librarianSvc)
	issues.RegisterRoutes(protected, issues.NewService(conn, cfg.Circulation, notifier, m))
	fines.RegisterRoutes(protected, fines.NewService(conn, cfg.Circulation, notifier, m))
	reports.RegisterRoutes(protected, reports.NewService(conn))
	notify.RegisterRoutes(protected, notifier)

	sub, err := fs.Sub(embedded, "public")
	if err != nil {
		log.Fatal(err)
	}
	fileFS := http.FS(sub)

	r.NoRoute(func(c *gin.Context) {
		// API は対象外
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Status(http.StatusNotFound)
			return
		}

		reqPath := strings.TrimPrefix(c.Request.URL.Path, "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		// 実ファイルがあるならそれを返す（Content-Type を推測、キャッシュ付与）
		if f, err := fileFS.Open(reqPath); err == nil {
			defer f.Close()
			if ct := mime.TypeByExtension(path.Ext(reqPath)); ct != "" {
				c.Header("Content-Type", ct)
			}
			// index.html 以外はキャッシュ（SPAの基本運用）
			if !strings.HasSuffix(reqPath, "index.html") {
				c.Header("Cache-Control", "public, max-age=86400, immutable")
			}
			if fileInfo, err := f.Stat(); err == nil {
				http.ServeContent(c.Writer, c.Request, reqPath, fileInfo.ModTime(), f)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		// なければ index.html にフォールバック
		if idx, err := fileFS.Open("index.html"); err == nil {
			defer idx.Close()
			c.Header("Content-Type", "text/html; charset=utf-8")
			if fileInfo, err := idx.Stat(); err == nil {
				http.ServeContent(c.Writer, c.Request, "index.html", fileInfo.ModTime(), idx)
			} else {
				c.Status(http.StatusInternalServerError)
			}
			return
		}

		c.Status(http.StatusNotFound)
	})

	// TLS起動（:8443 例）
	srv := &http.Server{
		Addr:    ":8443",
		Handler: r,
	}

	var certFile, keyFile string

	// TLS設定
	if mode == "dev" {
		//開発用
		certFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/dev/%s", cfg.Certificate.Key)
	} else {
		//本番用
		certFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
		keyFile = fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
	}

	go func() {
		log.Println("[INFO] listening on https://0.0.0.0:8443")
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}

// librarianWrites は更新系メソッドを librarian ロールに限定する。
// 参照（GET）はログイン済みであれば学生も通す。
func librarianWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		sess := auth.SessionFrom(c)
		if sess == nil || !sess.IsLibrarian() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{"code": "FORBIDDEN", "message": "librarian role required"},
			})
			return
		}
		c.Next()
	}
}
