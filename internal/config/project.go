package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Input templates accepted in a project file.
const (
	TemplateText               = "textinput"
	TemplateAlpino             = "alpino"
	TemplateStoplist           = "stoplist"
	TemplateMyClassification   = "myclassification"
	TemplateAdjClassification  = "adjclassification"
	TemplateNounClassification = "nounclassification"
	TemplateIntensify          = "intensify"
)

// ErrMissingParameter is returned when a required project option is absent.
var ErrMissingParameter = errors.New("missing parameter")

// MissingParameterError names the required option that was not set.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return ErrMissingParameter.Error() + ": " + e.Name
}

func (e *MissingParameterError) Is(target error) bool {
	return target == ErrMissingParameter
}

// ProjectParams is the project file written by the submission layer.
// Optional scalars are pointers so that absence can be told from zero.
type ProjectParams struct {
	OverlapSize            *int     `yaml:"overlapSize"`
	FrequencyClip          *float64 `yaml:"frequencyClip"`
	MTLDThreshold          *float64 `yaml:"mtldThreshold"`
	RarityLevel            *int     `yaml:"rarityLevel"`
	UseAlpino              string   `yaml:"useAlpino"`
	UseWopr                string   `yaml:"useWopr"`
	SentencePerLine        string   `yaml:"sentencePerLine"`
	Prevalence             string   `yaml:"prevalence"`
	CompoundSplitterMethod string   `yaml:"compoundSplitterMethod"`
	AlpinoOutput           string   `yaml:"alpinoOutput"`
	WordFreqLex            string   `yaml:"word_freq_lex"`
	LemmaFreqLex           string   `yaml:"lemma_freq_lex"`
	TopFreqLex             string   `yaml:"top_freq_lex"`

	Inputs []InputFile `yaml:"inputs"`
}

// InputFile is an uploaded file and the template it was accepted under.
type InputFile struct {
	Filename string `yaml:"filename"`
	Template string `yaml:"template"`
}

// Option documents one project option.
type Option struct {
	Name     string
	Required bool
	Default  string
}

// ProjectOptions enumerates every option of a project file.
var ProjectOptions = []Option{
	{Name: "word_freq_lex", Required: true},
	{Name: "lemma_freq_lex", Required: true},
	{Name: "top_freq_lex", Required: true},
	{Name: "overlapSize", Default: "50"},
	{Name: "frequencyClip", Default: "99"},
	{Name: "mtldThreshold", Default: "0.720"},
	{Name: "rarityLevel", Default: "4"},
	{Name: "useAlpino", Default: "yes"},
	{Name: "useWopr", Default: "yes"},
	{Name: "sentencePerLine", Default: "no"},
	{Name: "prevalence", Default: "nl"},
	{Name: "compoundSplitterMethod", Default: "none"},
	{Name: "alpinoOutput", Default: "no"},
}

// Wordlist is a custom word list option of tscan.cfg.
type Wordlist struct {
	Key  string
	Path string
}

// wordlists maps config keys to their input template and data-root default.
var wordlists = []struct {
	key, template, fallback string
}{
	{"stop_lemmata", TemplateStoplist, ""},
	{"my_classification", TemplateMyClassification, ""},
	{"adj_semtypes", TemplateAdjClassification, "/adjs_semtype.data"},
	{"noun_semtypes", TemplateNounClassification, "/nouns_semtype.data"},
	{"intensify", TemplateIntensify, "/intensiveringen.data"},
}

// RunConfig is the fully resolved configuration of one pipeline run.
type RunConfig struct {
	UseAlpino              bool
	UseWopr                bool
	SentencePerLine        bool
	AlpinoOutput           bool
	CompoundSplitterMethod string // empty when disabled

	RarityLevel   int
	OverlapSize   int
	FrequencyClip float64
	MTLDThreshold float64
	Prevalence    string

	WordFreqLex  string
	LemmaFreqLex string
	TopFreqLex   string

	// TextInputs are the documents to analyse, in submission order.
	TextInputs []string
	// AlpinoInputs are uploaded parse files used to seed the lookup.
	AlpinoInputs []string
	Wordlists    []Wordlist

	InputDir   string
	OutputDir  string
	TscanDir   string
	TscanData  string
	TscanSrc   string
	AlpinoHome string

	Services ServicesConfig
}

// LoadProject reads a YAML project file.
func LoadProject(path string) (*ProjectParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var params ProjectParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse project file: %w", err)
	}
	return &params, nil
}

// SaveProject writes a YAML project file.
func SaveProject(path string, params *ProjectParams) error {
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal project file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	return nil
}

// Validate checks that every required option is present. The returned error
// is a *MissingParameterError for the first missing option.
func (p *ProjectParams) Validate() error {
	values := map[string]string{
		"word_freq_lex":  p.WordFreqLex,
		"lemma_freq_lex": p.LemmaFreqLex,
		"top_freq_lex":   p.TopFreqLex,
	}
	for _, opt := range ProjectOptions {
		if !opt.Required {
			continue
		}
		if strings.TrimSpace(values[opt.Name]) == "" {
			return &MissingParameterError{Name: opt.Name}
		}
	}
	return nil
}

// InputsFor returns the filenames submitted under a template, in order.
func (p *ProjectParams) InputsFor(template string) []string {
	var names []string
	for _, in := range p.Inputs {
		if in.Template == template {
			names = append(names, in.Filename)
		}
	}
	return names
}

// Paths are the positional service locations handed to the wrapper.
type Paths struct {
	InputDir   string
	OutputDir  string
	TscanDir   string
	TscanData  string
	TscanSrc   string
	AlpinoHome string
}

// Resolve applies defaults and produces the run configuration. It does not
// validate; call Validate first.
func (p *ProjectParams) Resolve(paths Paths, services ServicesConfig) *RunConfig {
	rc := &RunConfig{
		UseAlpino:       yes(p.UseAlpino, true),
		UseWopr:         yes(p.UseWopr, true),
		SentencePerLine: yes(p.SentencePerLine, false),
		AlpinoOutput:    p.AlpinoOutput != "" && p.AlpinoOutput != "no",

		RarityLevel:   4,
		OverlapSize:   50,
		FrequencyClip: 99,
		MTLDThreshold: 0.720,
		Prevalence:    "nl",

		WordFreqLex:  p.WordFreqLex,
		LemmaFreqLex: p.LemmaFreqLex,
		TopFreqLex:   p.TopFreqLex,

		InputDir:   paths.InputDir,
		OutputDir:  paths.OutputDir,
		TscanDir:   paths.TscanDir,
		TscanData:  paths.TscanData,
		TscanSrc:   paths.TscanSrc,
		AlpinoHome: paths.AlpinoHome,
		Services:   services,
	}

	if m := strings.TrimSpace(p.CompoundSplitterMethod); m != "" && m != "none" {
		rc.CompoundSplitterMethod = m
	}
	if p.RarityLevel != nil {
		rc.RarityLevel = *p.RarityLevel
	}
	if p.OverlapSize != nil {
		rc.OverlapSize = *p.OverlapSize
	}
	if p.FrequencyClip != nil {
		rc.FrequencyClip = *p.FrequencyClip
	}
	if p.MTLDThreshold != nil {
		rc.MTLDThreshold = *p.MTLDThreshold
	}
	if p.Prevalence != "" {
		rc.Prevalence = p.Prevalence
	}

	for _, name := range p.InputsFor(TemplateText) {
		rc.TextInputs = append(rc.TextInputs, filepath.Join(paths.InputDir, name))
	}
	for _, name := range p.InputsFor(TemplateAlpino) {
		rc.AlpinoInputs = append(rc.AlpinoInputs, filepath.Join(paths.InputDir, name))
	}

	for _, wl := range wordlists {
		var path string
		if names := p.InputsFor(wl.template); len(names) > 0 {
			path = filepath.Join(paths.InputDir, names[0])
		} else if wl.fallback != "" {
			path = paths.TscanData + wl.fallback
		}
		if path != "" {
			rc.Wordlists = append(rc.Wordlists, Wordlist{Key: wl.key, Path: path})
		}
	}

	return rc
}

func yes(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return def
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}
