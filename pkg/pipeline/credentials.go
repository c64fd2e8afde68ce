package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/errorsx"
)

// Credentials are the per-session keys for the upstream services.
type Credentials struct {
	Transcription string
	Synthesis     string
	LanguageModel string
	// MovieLookup is optional.
	MovieLookup string
}

// Resolve fills every empty caller field from defaults.
func (c Credentials) Resolve(defaults Credentials) Credentials {
	pick := func(caller, fallback string) string {
		if v := strings.TrimSpace(caller); v != "" {
			return v
		}
		return strings.TrimSpace(fallback)
	}
	return Credentials{
		Transcription: pick(c.Transcription, defaults.Transcription),
		Synthesis:     pick(c.Synthesis, defaults.Synthesis),
		LanguageModel: pick(c.LanguageModel, defaults.LanguageModel),
		MovieLookup:   pick(c.MovieLookup, defaults.MovieLookup),
	}
}

// MissingCredentialError names the first required credential that is absent.
type MissingCredentialError struct {
	Service string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s API key is required but not provided", e.Service)
}

// Validate checks the required credentials in the order transcription,
// synthesis, language model.
func (c Credentials) Validate() error {
	required := []struct {
		service string
		value   string
	}{
		{"AssemblyAI", c.Transcription},
		{"Murf", c.Synthesis},
		{"Gemini", c.LanguageModel},
	}
	for _, r := range required {
		if r.value == "" {
			return errorsx.Wrap(&MissingCredentialError{Service: r.service}, errorsx.ReasonCredentialMissing)
		}
	}
	return nil
}

// MissingService returns the service named by a credential error.
func MissingService(err error) (string, bool) {
	var mce *MissingCredentialError
	if errors.As(err, &mce) {
		return mce.Service, true
	}
	return "", false
}
