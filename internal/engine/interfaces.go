package engine

import (
	"context"

	"github.com/mailspend/mailspend/internal/model"
	"github.com/mailspend/mailspend/internal/service"
)

// Analyzer defines the contract for the external analysis service. A nil
// Analyzer runs the pipeline in extraction-only mode.
type Analyzer interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (*model.AnalysisResult, error)
}
