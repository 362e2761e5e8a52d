package usecase

import (
	"github.com/semmidev/dockdump/internal/adapter/storage"
	"github.com/semmidev/dockdump/internal/domain"
)

type ArtifactLister interface {
	Artifacts() ([]storage.Entry, error)
}

type IntegrityChecker interface {
	Verify(path string) (int64, error)
}

// VerifyReport lists the artifacts that failed to decompress.
type VerifyReport struct {
	Checked int
	Corrupt []string
}

func (r VerifyReport) OK() bool {
	return len(r.Corrupt) == 0
}

// Verifier decompresses every artifact in the backup tree.
type Verifier struct {
	tree    ArtifactLister
	checker IntegrityChecker
	logger  domain.Logger
}

func NewVerifier(tree ArtifactLister, checker IntegrityChecker, logger domain.Logger) *Verifier {
	return &Verifier{tree: tree, checker: checker, logger: logger}
}

func (v *Verifier) Verify() (VerifyReport, error) {
	entries, err := v.tree.Artifacts()
	if err != nil {
		return VerifyReport{}, err
	}

	var report VerifyReport
	for _, e := range entries {
		report.Checked++
		n, err := v.checker.Verify(e.Path)
		if err != nil {
			v.logger.Errorf("Corrupt backup %s: %v", e.Path, err)
			report.Corrupt = append(report.Corrupt, e.Path)
			continue
		}
		v.logger.Debugf("Verified %s (%.2f MB uncompressed)", e.Path, megabytes(uint64(n)))
	}

	v.logger.Infof("Verified %d backup(s), %d corrupt", report.Checked, len(report.Corrupt))
	return report, nil
}
