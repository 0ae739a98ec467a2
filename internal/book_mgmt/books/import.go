package books

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSV列: title, author, publisher, year, copies（ヘッダ行あり）
// 文字コードは UTF-8 / UTF-16(BOM付き) / Shift-JIS を受け付ける。
// 旧蔵書リストのExcel書き出しがSJISで来るため。

const importMaxRows = 5000

// ImportBooks parses the CSV payload and creates one book per data row.
// Row failures do not abort the rest of the file; each row reports its own
// result, as with the asset import this was modeled on.
func (s *Service) ImportBooks(ctx context.Context, payload []byte) (ImportBooksResponse, error) {
	records, err := parseImportCSV(payload)
	if err != nil {
		return ImportBooksResponse{}, ErrInvalid(err.Error())
	}
	if len(records) > importMaxRows {
		return ImportBooksResponse{}, ErrInvalid(fmt.Sprintf("too many rows (max %d)", importMaxRows))
	}

	resp := ImportBooksResponse{Total: len(records)}
	for i, rec := range records {
		rowNum := i + 1
		result := ImportRowResult{Row: rowNum}

		id, err := s.importRow(ctx, rec)
		if err != nil {
			msg := err.Error()
			result.Error = &msg
			resp.NgCount++
		} else {
			result.Ok = true
			result.BookID = id
			resp.OkCount++
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

type importRecord struct {
	Title     string
	Author    string
	Publisher string
	Year      string
	Copies    string
}

func (s *Service) importRow(ctx context.Context, rec importRecord) (int64, error) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		return 0, fmt.Errorf("title is required")
	}

	copies := 1
	if rec.Copies != "" {
		v, err := strconv.Atoi(strings.TrimSpace(rec.Copies))
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid copies %q", rec.Copies)
		}
		copies = v
	}

	m := &Book{Title: title, AvailableCopies: copies}

	if name := strings.TrimSpace(rec.Author); name != "" {
		authorID, err := s.store.ResolveOrCreateAuthor(ctx, name)
		if err != nil {
			return 0, err
		}
		m.AuthorID.Int64 = authorID
		m.AuthorID.Valid = true
	}
	if pub := strings.TrimSpace(rec.Publisher); pub != "" {
		m.Publisher.String = pub
		m.Publisher.Valid = true
	}
	if y := strings.TrimSpace(rec.Year); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil {
			return 0, fmt.Errorf("invalid year %q", rec.Year)
		}
		m.YearOfPublication.Int64 = int64(v)
		m.YearOfPublication.Valid = true
	}

	if err := s.store.InsertBook(ctx, m); err != nil {
		return 0, err
	}
	return m.BookID, nil
}

func parseImportCSV(payload []byte) ([]importRecord, error) {
	decoded, err := decodeToUTF8(payload)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1 // 列の過不足は行単位で判定する

	var out []importRecord
	first := true
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv parse error: %v", err)
		}
		if first {
			first = false
			// ヘッダ行はスキップ（title,author,... 想定）
			if len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "title") {
				continue
			}
		}
		rec := importRecord{}
		if len(fields) > 0 {
			rec.Title = fields[0]
		}
		if len(fields) > 1 {
			rec.Author = fields[1]
		}
		if len(fields) > 2 {
			rec.Publisher = fields[2]
		}
		if len(fields) > 3 {
			rec.Year = fields[3]
		}
		if len(fields) > 4 {
			rec.Copies = fields[4]
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeToUTF8: BOMでUTF-16を判定、UTF-8として不正ならShift-JISとみなす
func decodeToUTF8(b []byte) ([]byte, error) {
	if len(b) >= 2 {
		if (b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF) {
			dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
			out, _, err := transform.Bytes(dec, b)
			return out, err
		}
	}
	// UTF-8 BOM
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(b) {
		return b, nil
	}
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), b)
	return out, err
}
