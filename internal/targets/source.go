package targets

import "github.com/hamed0406/srvstatus/internal/domain"

// Source supplies the targets for a run.
type Source interface {
	Load() ([]domain.Target, error)
}

// Inline is a target list given directly, e.g. from the YAML config.
type Inline []domain.Target

func (s Inline) Load() ([]domain.Target, error) { return Normalize(s) }

// File is the path of a plain-text target list.
type File string

func (f File) Load() ([]domain.Target, error) { return LoadFile(string(f)) }
