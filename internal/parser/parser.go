package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/aihub/finance-rag/internal/errors"
)

// PageParser 页级文件解析器接口，输出按页切分的文本
type PageParser interface {
	ParsePages(reader io.Reader, filename string) ([]string, error)
	Supports(filename string) bool
}

// TextParser 文本文件解析器。换页符分页，无换页符时整篇视为单页
type TextParser struct{}

func (p *TextParser) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

func (p *TextParser) ParsePages(reader io.Reader, filename string) ([]string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return strings.Split(string(content), "\f"), nil
}

// PDFParser PDF文件解析器，逐页提取文本
type PDFParser struct{}

func (p *PDFParser) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (p *PDFParser) ParsePages(reader io.Reader, filename string) ([]string, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取PDF文件失败: %w", err)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			pages = append(pages, "")
			continue
		}

		ex, err := extractor.New(page)
		if err != nil {
			pages = append(pages, "")
			continue
		}

		text, err := ex.ExtractText()
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}

	return pages, nil
}

// WordParser Word文档解析器。docx没有固定分页，按段落拼接后视为单页
type WordParser struct{}

func (p *WordParser) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".docx" || ext == ".doc"
}

func (p *WordParser) ParsePages(reader io.Reader, filename string) ([]string, error) {
	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取Word文件失败: %w", err)
	}

	if strings.ToLower(filepath.Ext(filename)) == ".doc" {
		return nil, fmt.Errorf("暂不支持.doc格式，请使用.docx格式")
	}

	readerAt := bytes.NewReader(docBytes)
	doc, err := document.Read(readerAt, int64(len(docBytes)))
	if err != nil {
		return nil, fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	return []string{textBuilder.String()}, nil
}

// Manager 文件解析器管理器
type Manager struct {
	parsers []PageParser
}

// NewManager 创建文件解析器管理器
func NewManager() *Manager {
	return &Manager{
		parsers: []PageParser{
			&PDFParser{},
			&WordParser{},
			&TextParser{},
		},
	}
}

// ParsePages 按文件类型解析文件，输出页文本列表
func (m *Manager) ParsePages(reader io.Reader, filename string) ([]string, error) {
	for _, parser := range m.parsers {
		if parser.Supports(filename) {
			pages, err := parser.ParsePages(reader, filename)
			if err != nil {
				return nil, apperrors.NewValidationError(
					apperrors.ErrCodeInvalidDocument,
					fmt.Sprintf("文件解析失败: %s", filename),
				).WithCause(err)
			}
			return pages, nil
		}
	}
	return nil, apperrors.NewValidationError(
		apperrors.ErrCodeInvalidDocument,
		fmt.Sprintf("不支持的文件格式: %s", filename),
	)
}

// Supports 检查文件格式是否受支持
func (m *Manager) Supports(filename string) bool {
	for _, parser := range m.parsers {
		if parser.Supports(filename) {
			return true
		}
	}
	return false
}

// SupportedFormats 获取支持的文件扩展名
func (m *Manager) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".markdown"}
}
