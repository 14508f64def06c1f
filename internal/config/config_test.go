package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	t.Setenv("CLAM_ROOT", "")
	path := filepath.Join(t.TempDir(), "tscan.config.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err, "default config should be written")
	assert.Equal(t, "clamdispatcher", cfg.Dispatcher.Command)
	assert.Equal(t, 7003, cfg.Services.Alpino.Port)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("CLAM_ROOT", "")
	t.Setenv("ALPINO_HOME", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "tscan.config.xml")
	content := `<?xml version="1.0"?>
<TScan>
  <Storage><ProjectsDirectory>projects</ProjectsDirectory></Storage>
  <Services><Frog><Host>frog</Host><Port>9001</Port></Frog></Services>
</TScan>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "projects"), cfg.GetProjectsDir())
	assert.Equal(t, "frog:9001", cfg.Services.Frog.String())
	assert.Equal(t, 7020, cfg.Services.WoprForward.Port)
	assert.Equal(t, "/Alpino", cfg.Engine.AlpinoHome)
}

func TestLoadConfig_ServerTimeouts(t *testing.T) {
	t.Setenv("CLAM_ROOT", "")
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "tscan.config.xml")
	content := `<?xml version="1.0"?>
<TScan>
  <Server><ReadTimeoutSeconds>5</ReadTimeoutSeconds><WriteTimeoutSeconds>10</WriteTimeoutSeconds></Server>
</TScan>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err, "older files with a write timeout still load")
	assert.Equal(t, 5, cfg.Server.ReadTimeout)
	assert.Equal(t, 120, cfg.Server.IdleTimeout)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CLAM_ROOT", "/srv/clam")
	t.Setenv("ALPINO_HOME", "/opt/Alpino")
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "tscan.config.xml"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/clam/tscan.clam/projects", cfg.GetProjectsDir())
	assert.Equal(t, "/opt/Alpino", cfg.Engine.AlpinoHome)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tscan.config.xml")
	require.NoError(t, os.WriteFile(path, []byte("<TScan><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestProjectParams_Validate(t *testing.T) {
	p := &ProjectParams{WordFreqLex: "w.freq", LemmaFreqLex: "l.freq"}

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingParameter))
	assert.Contains(t, err.Error(), "top_freq_lex")

	p.TopFreqLex = "t.freq"
	assert.NoError(t, p.Validate())
}

func TestProjectParams_ResolveDefaults(t *testing.T) {
	p := &ProjectParams{
		WordFreqLex:  "w.freq",
		LemmaFreqLex: "l.freq",
		TopFreqLex:   "t.freq",
		Inputs: []InputFile{
			{Filename: "b.txt", Template: TemplateText},
			{Filename: "a.txt", Template: TemplateText},
			{Filename: "stop.data", Template: TemplateStoplist},
			{Filename: "parses.alpino.xml", Template: TemplateAlpino},
		},
	}

	rc := p.Resolve(Paths{InputDir: "/p/input", OutputDir: "/p/output", TscanData: "/data"}, DefaultConfig().Services)

	assert.True(t, rc.UseAlpino)
	assert.True(t, rc.UseWopr)
	assert.False(t, rc.SentencePerLine)
	assert.False(t, rc.AlpinoOutput)
	assert.Empty(t, rc.CompoundSplitterMethod)
	assert.Equal(t, 4, rc.RarityLevel)
	assert.Equal(t, 50, rc.OverlapSize)
	assert.Equal(t, 99.0, rc.FrequencyClip)
	assert.Equal(t, 0.720, rc.MTLDThreshold)
	assert.Equal(t, "nl", rc.Prevalence)

	assert.Equal(t, []string{"/p/input/b.txt", "/p/input/a.txt"}, rc.TextInputs, "submission order is kept")
	assert.Equal(t, []string{"/p/input/parses.alpino.xml"}, rc.AlpinoInputs)
	assert.Equal(t, []Wordlist{
		{Key: "stop_lemmata", Path: "/p/input/stop.data"},
		{Key: "adj_semtypes", Path: "/data/adjs_semtype.data"},
		{Key: "noun_semtypes", Path: "/data/nouns_semtype.data"},
		{Key: "intensify", Path: "/data/intensiveringen.data"},
	}, rc.Wordlists)
}

func TestProjectParams_ResolveOverrides(t *testing.T) {
	overlap := 20
	clip := 80.5
	p := &ProjectParams{
		OverlapSize:            &overlap,
		FrequencyClip:          &clip,
		UseAlpino:              "no",
		SentencePerLine:        "yes",
		CompoundSplitterMethod: "secos",
		AlpinoOutput:           "yes",
		Prevalence:             "be",
	}

	rc := p.Resolve(Paths{}, ServicesConfig{})

	assert.False(t, rc.UseAlpino)
	assert.True(t, rc.SentencePerLine)
	assert.True(t, rc.AlpinoOutput)
	assert.Equal(t, "secos", rc.CompoundSplitterMethod)
	assert.Equal(t, 20, rc.OverlapSize)
	assert.Equal(t, 80.5, rc.FrequencyClip)
	assert.Equal(t, "be", rc.Prevalence)
}

func TestLoadProject_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yml")
	rarity := 3
	in := &ProjectParams{
		RarityLevel: &rarity,
		WordFreqLex: "w.freq",
		Inputs:      []InputFile{{Filename: "doc.txt", Template: TemplateText}},
	}
	require.NoError(t, SaveProject(path, in))

	out, err := LoadProject(path)
	require.NoError(t, err)
	require.NotNil(t, out.RarityLevel)
	assert.Equal(t, 3, *out.RarityLevel)
	assert.Nil(t, out.OverlapSize)
	assert.Equal(t, []string{"doc.txt"}, out.InputsFor(TemplateText))
}
