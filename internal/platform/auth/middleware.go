package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxSessionKey = "auth_session"

// Session はサインインで作られ、トークン失効で無効になる明示的なセッション。
// グローバル状態は持たず、ハンドラ経由でサービスに渡す。
type Session struct {
	Email     string
	Role      string
	UserID    string // student_id または librarian_id（文字列）
	ExpiresAt time.Time
}

func (s *Session) IsLibrarian() bool { return s.Role == RoleLibrarian }

// SessionFrom returns the session set by RequireAuth, or nil on public routes.
func SessionFrom(c *gin.Context) *Session {
	v, ok := c.Get(ctxSessionKey)
	if !ok {
		return nil
	}
	sess, ok := v.(*Session)
	if !ok {
		return nil
	}
	return sess
}

// RequireAuth: Authorization: Bearer <token> を検証して Session を context に詰める
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		sess, err := ParseSession(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxSessionKey, sess)
		c.Next()
	}
}

// ParseSession verifies the token and extracts the session claims.
func ParseSession(tokenStr string, secret []byte) (*Session, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	role, _ := claims["role"].(string)
	uid, _ := claims["uid"].(string)

	sess := &Session{Email: sub, Role: role, UserID: uid}
	if expAny, ok := claims["exp"].(float64); ok {
		sess.ExpiresAt = time.Unix(int64(expAny), 0)
	}
	return sess, nil
}

// RequireRole: 例) librarian のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if sess == nil || sess.Role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing role"})
			return
		}

		_, allowed := roleSet[sess.Role]
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
