package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/eshaffer321/contribution-reconciler/internal/adapters/decoders"
	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// RunFlags are the flags of the run command
type RunFlags struct {
	SessionID    string
	OwnerID      string
	Statement    string
	Contributors []string // church=path or church:Name=path
	Additive     bool
	Threshold    float64
	DayTolerance int
	JSON         bool
}

// ContributorArg is a parsed --contributors value
type ContributorArg struct {
	Church models.Church
	Path   string
}

// ParseContributorArg parses "id=path" or "id:Display Name=path".
func ParseContributorArg(raw string) (ContributorArg, error) {
	church, path, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(church) == "" || strings.TrimSpace(path) == "" {
		return ContributorArg{}, fmt.Errorf("invalid contributor list %q, want church=path", raw)
	}
	id, name, hasName := strings.Cut(church, ":")
	id = strings.TrimSpace(id)
	if !hasName || strings.TrimSpace(name) == "" {
		name = id
	}
	return ContributorArg{
		Church: models.Church{ID: id, Name: strings.TrimSpace(name)},
		Path:   strings.TrimSpace(path),
	}, nil
}

// options returns matcher overrides, nil when no flag was given.
func (f RunFlags) options(defaults matcher.Options) *matcher.Options {
	if f.Threshold <= 0 && f.DayTolerance < 0 {
		return nil
	}
	opts := defaults
	if f.Threshold > 0 {
		opts.SimilarityThreshold = f.Threshold
	}
	if f.DayTolerance >= 0 {
		opts.DayTolerance = f.DayTolerance
	}
	return &opts
}

// readFile loads and decodes one input file.
func readFile(path string) (reconcile.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reconcile.File{}, err
	}
	return decoders.Decode(path, data)
}

func (f RunFlags) contributorFiles() ([]reconcile.ContributorFile, error) {
	out := make([]reconcile.ContributorFile, 0, len(f.Contributors))
	for _, raw := range f.Contributors {
		spec, err := ParseContributorArg(raw)
		if err != nil {
			return nil, err
		}
		file, err := readFile(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("contributor list for %s: %w", spec.Church.ID, err)
		}
		out = append(out, reconcile.ContributorFile{Church: spec.Church, File: file})
	}
	return out, nil
}
