package commentary

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
)

//go:embed phrases.yaml
var defaultPhrases []byte

// yamlPhraseFile is the top-level YAML structure for phrase files.
type yamlPhraseFile struct {
	Phrases yamlPhrases `yaml:"phrases"`
}

type yamlPhrases struct {
	WelcomeGreeting string            `yaml:"welcome_greeting"`
	PromptEcho      string            `yaml:"prompt_echo"`
	DTMFAck         string            `yaml:"dtmf_ack"`
	Final           map[string]string `yaml:"final"`
}

// PhraseBook holds the fixed lines spoken by the service.
type PhraseBook struct {
	WelcomeGreeting string
	PromptEcho      string
	DTMFAck         string
	Final           map[battlesnake.Outcome]string
}

// DefaultPhraseBook returns the built-in phrase book.
//
// Postcondition: Never fails; the embedded file is validated by tests.
func DefaultPhraseBook() *PhraseBook {
	pb, err := LoadPhraseBookFromBytes(defaultPhrases)
	if err != nil {
		panic(fmt.Sprintf("commentary: embedded phrase book: %v", err))
	}
	return pb
}

// LoadPhraseBook reads a phrase book from path, or returns the built-in one
// when path is empty. Entries missing from the file keep their built-in value.
//
// Postcondition: Returns a complete PhraseBook or a non-nil error.
func LoadPhraseBook(path string) (*PhraseBook, error) {
	if path == "" {
		return DefaultPhraseBook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading phrase file %s: %w", path, err)
	}
	override, err := LoadPhraseBookFromBytes(data)
	if err != nil {
		return nil, err
	}
	return DefaultPhraseBook().merge(override), nil
}

// LoadPhraseBookFromBytes parses a phrase book from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the phrase schema.
func LoadPhraseBookFromBytes(data []byte) (*PhraseBook, error) {
	var file yamlPhraseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing phrase YAML: %w", err)
	}

	pb := &PhraseBook{
		WelcomeGreeting: file.Phrases.WelcomeGreeting,
		PromptEcho:      file.Phrases.PromptEcho,
		DTMFAck:         file.Phrases.DTMFAck,
		Final:           make(map[battlesnake.Outcome]string, len(file.Phrases.Final)),
	}
	for k, v := range file.Phrases.Final {
		switch o := battlesnake.Outcome(k); o {
		case battlesnake.OutcomeWin, battlesnake.OutcomeLoss, battlesnake.OutcomeDraw:
			pb.Final[o] = v
		default:
			return nil, fmt.Errorf("unknown final outcome %q", k)
		}
	}
	return pb, nil
}

func (pb *PhraseBook) merge(o *PhraseBook) *PhraseBook {
	if o.WelcomeGreeting != "" {
		pb.WelcomeGreeting = o.WelcomeGreeting
	}
	if o.PromptEcho != "" {
		pb.PromptEcho = o.PromptEcho
	}
	if o.DTMFAck != "" {
		pb.DTMFAck = o.DTMFAck
	}
	for k, v := range o.Final {
		if v != "" {
			pb.Final[k] = v
		}
	}
	return pb
}

// Echo renders the reply to a caller utterance.
func (pb *PhraseBook) Echo(utterance string) string {
	return fmt.Sprintf(pb.PromptEcho, utterance)
}

// Ack renders the reply to a keypad digit.
func (pb *PhraseBook) Ack(digit string) string {
	return fmt.Sprintf(pb.DTMFAck, digit)
}

// FinalLine returns the closing line for outcome.
func (pb *PhraseBook) FinalLine(outcome battlesnake.Outcome) string {
	return pb.Final[outcome]
}
