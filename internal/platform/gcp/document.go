package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/ragdesk-backend/internal/platform/ctxutil"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Credentials      string
	Timeout          time.Duration
}

// DocumentAI extracts PDF text with a Document AI processor. It is an
// alternative to the pdftotext extractor for scanned documents.
type DocumentAI struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
	timeout   time.Duration
}

func NewDocumentAI(ctx context.Context, log *logger.Logger, cfg DocumentAIConfig) (*DocumentAI, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us"
	}
	name := processorName(cfg.ProjectID, location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai: project and processor id are required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptions(cfg.Credentials)...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	d := &DocumentAI{
		log:       log.With("service", "DocumentAIExtractor"),
		client:    c,
		processor: name,
		timeout:   cfg.Timeout,
	}
	d.log.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return d, nil
}

func (d *DocumentAI) Name() string { return "documentai" }

func (d *DocumentAI) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), d.timeout)
	defer cancel()
	resp, err := d.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: d.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: "application/pdf"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return documentText(resp.Document), nil
}

func (d *DocumentAI) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// documentText joins paragraph text page by page. Processors that return no
// paragraph layout fall back to the flat document text.
func documentText(doc *documentaipb.Document) string {
	if doc == nil {
		return ""
	}
	pages := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		var b strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil {
				continue
			}
			t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if t == "" {
				continue
			}
			b.WriteString(t)
			b.WriteString("\n")
		}
		if pt := strings.TrimSpace(b.String()); pt != "" {
			pages = append(pages, pt)
		}
	}
	if len(pages) == 0 {
		return strings.TrimSpace(doc.Text)
	}
	return strings.Join(pages, "\n\n")
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	version = strings.TrimSpace(version)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
