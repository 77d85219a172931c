package matching

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// tableFile is the on-disk shape of a compatibility override:
//
//	compatibility:
//	  O-: [O-]
//	  O+: [O+]
//	  ...
type tableFile struct {
	Compatibility map[string][]string `yaml:"compatibility"`
}

// LoadTableFile reads and validates a YAML compatibility table.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open compatibility file %s: %w", path, err)
	}
	defer f.Close()

	t, err := DecodeTable(f)
	if err != nil {
		return nil, fmt.Errorf("load compatibility file %s: %w", path, err)
	}
	return t, nil
}

// DecodeTable parses a YAML compatibility table from r.
func DecodeTable(r io.Reader) (*Table, error) {
	var raw tableFile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("decode yaml: %v", err)}
	}
	if len(raw.Compatibility) == 0 {
		return nil, &ConfigurationError{Reason: "no compatibility entries"}
	}

	def := make(map[domain.BloodType][]domain.BloodType, len(raw.Compatibility))
	for donorRaw, recipientsRaw := range raw.Compatibility {
		donor, err := domain.ParseBloodType(donorRaw)
		if err != nil {
			return nil, &ConfigurationError{Reason: err.Error()}
		}
		if _, dup := def[donor]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("donor %s listed more than once (key %q)", donor, donorRaw)}
		}
		recipients := make([]domain.BloodType, 0, len(recipientsRaw))
		for _, r := range recipientsRaw {
			recipient, err := domain.ParseBloodType(r)
			if err != nil {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("donor %s: %v", donor, err)}
			}
			recipients = append(recipients, recipient)
		}
		def[donor] = recipients
	}
	return NewTable(def)
}
