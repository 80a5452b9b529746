package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/converter"
	"github.com/local/pdfsnip/internal/document"
)

// ExternalTool exports by running a pdftk-compatible tool:
//
//	tool <source> cat <pages...> output <dest>
//
// It handles a single PDF source and cannot rotate or crop.
type ExternalTool struct {
	Runner converter.Runner
	Tool   string
}

// Name implements Engine.
func (x *ExternalTool) Name() string { return "external" }

// Capabilities implements Engine.
func (x *ExternalTool) Capabilities() Capabilities { return Capabilities{} }

func (x *ExternalTool) tool() string {
	if x.Tool == "" {
		return "pdftk"
	}
	return x.Tool
}

// Export implements Engine.
func (x *ExternalTool) Export(ctx context.Context, job Job) (Report, error) {
	if len(job.Pages) == 0 {
		return Report{}, ErrEmptyDocument
	}
	docs := sourceDocuments(job)
	if len(docs) != 1 {
		return Report{}, fmt.Errorf("%w: %s handles one source document, %d are open", ErrUnsupportedOperation, x.tool(), len(docs))
	}
	src := docs[0]
	if src.Kind != document.KindPDF {
		return Report{}, fmt.Errorf("%w: %s cannot read %s sources", ErrUnsupportedOperation, x.tool(), src.Kind)
	}

	dropped := 0
	args := []string{src.WorkingCopy, "cat"}
	for _, p := range job.Pages {
		if p.Page < 0 || p.Page >= src.Pages {
			return Report{}, &document.DecodeError{Path: src.Path, Page: p.Page, Err: fmt.Errorf("page out of range (document has %d pages)", src.Pages)}
		}
		if p.Transformed() {
			dropped++
		}
		args = append(args, strconv.Itoa(p.Page+1))
	}
	if dropped > 0 {
		log.Warn().Str("tool", x.tool()).Int("pages", dropped).Msg("rotation and crop are not applied by the external tool")
	}

	err := writeAtomic(job.Dest, func(tmp string) error {
		_, err := x.Runner.Run(ctx, x.tool(), append(args, "output", tmp)...)
		if errors.Is(err, converter.ErrProtected) {
			return fmt.Errorf("%s: %w", src.Path, document.ErrEncrypted)
		}
		return err
	})
	if err != nil {
		return Report{}, err
	}
	return Report{Pages: len(job.Pages), DroppedTransforms: dropped}, nil
}
