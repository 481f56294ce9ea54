package local

import (
	"github.com/somauser/workflow-engine/internal/executil"
	"github.com/somauser/workflow-engine/pkg/types"
)

// process is a thin alias over executil.Process kept local-package-scoped
// so jobState can hold one without exposing executil in this package's
// public surface.
type process = executil.Process

func newProcess(job *types.Job) (*process, error) { return executil.Start(job) }
