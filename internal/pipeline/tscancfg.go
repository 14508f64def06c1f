package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/CentreForDigitalHumanities/tscan/internal/config"
)

// ConfigName is the engine configuration written into the output directory.
const ConfigName = "tscan.cfg"

// Resource files shipped in the data root, referenced by name.
var fixedResources = []struct{ key, file string }{
	{"verb_semtypes", "verbs_semtype.data"},
	{"general_nouns", "general_nouns.data"},
	{"general_verbs", "general_verbs.data"},
	{"adverbs", "adverbs.data"},
}

var connectorLists = []struct{ key, file string }{
	{"voorzetselexpr", "voorzetseluitdrukkingen.txt"},
	{"afkortingen", "afkortingen.lst"},
	{"temporals", "temporal_connectors.lst"},
	{"opsom_connectors_wg", "opsom_connectors_wg.lst"},
	{"opsom_connectors_zin", "opsom_connectors_zin.lst"},
	{"contrast", "contrast_connectors.lst"},
	{"compars", "compar_connectors.lst"},
	{"causals", "causal_connectors.lst"},
	{"causal_situation", "causaliteit.txt"},
	{"space_situation", "ruimte.txt"},
	{"time_situation", "tijd.txt"},
	{"emotion_situation", "emoties.txt"},
}

// WriteConfig renders tscan.cfg for a run.
func WriteConfig(w io.Writer, rc *config.RunConfig, lookupPath string) error {
	var b bytes.Buffer

	if rc.UseAlpino {
		b.WriteString("useAlpinoServer=1\nuseAlpino=1\nsaveAlpinoOutput=1\nsaveAlpinoMetadata=0\n")
	} else {
		b.WriteString("useAlpinoServer=0\nuseAlpino=0\n")
	}
	flag(&b, "useWopr", rc.UseWopr)
	flag(&b, "useCompoundSplitter", rc.CompoundSplitterMethod != "")
	flag(&b, "sentencePerLine", rc.SentencePerLine)

	quoted(&b, "surprisalPath", rc.TscanDir)
	quoted(&b, "styleSheet", StylesheetName)

	fmt.Fprintf(&b, "rarityLevel=%d\n", rc.RarityLevel)
	fmt.Fprintf(&b, "overlapSize=%d\n", rc.OverlapSize)
	fmt.Fprintf(&b, "frequencyClip=%s\n", number(rc.FrequencyClip))
	fmt.Fprintf(&b, "mtldThreshold=%s\n", number(rc.MTLDThreshold))

	fmt.Fprintf(&b, "configDir=%s\n", rc.TscanData)
	for _, r := range fixedResources {
		quoted(&b, r.key, r.file)
	}

	quoted(&b, "alpino_lookup", lookupPath)
	for _, wl := range rc.Wordlists {
		quoted(&b, wl.Key, wl.Path)
	}

	quoted(&b, "word_freq_lex", rc.WordFreqLex)
	quoted(&b, "lemma_freq_lex", rc.LemmaFreqLex)
	quoted(&b, "staph_word_freq_lex", "freqlist_staphorsius_CLIB_words.freq")
	quoted(&b, "top_freq_lex", rc.TopFreqLex)

	for _, c := range connectorLists {
		quoted(&b, c.key, c.file)
	}
	quoted(&b, "prevalence", "prevalence_"+rc.Prevalence+".data")
	quoted(&b, "formal", "formal.data")

	s := rc.Services
	fmt.Fprintf(&b, "[[frog]]\nport=%d\nhost=%s\n\n", s.Frog.Port, s.Frog.Host)
	fmt.Fprintf(&b, "[[wopr]]\nport_fwd=%d\nhost_fwd=%s\n\n", s.WoprForward.Port, s.WoprForward.Host)
	fmt.Fprintf(&b, "port_bwd=%d\nhost_bwd=%s\n\n", s.WoprBackward.Port, s.WoprBackward.Host)
	fmt.Fprintf(&b, "[[alpino]]\nport=%d\nhost=%s\n", s.Alpino.Port, s.Alpino.Host)
	if rc.CompoundSplitterMethod != "" {
		fmt.Fprintf(&b, "\n[[compound_splitter]]\nport=%d\nhost=%s\n", s.CompoundSplitter.Port, s.CompoundSplitter.Host)
		quoted(&b, "method", rc.CompoundSplitterMethod)
	}

	_, err := w.Write(b.Bytes())
	return err
}

func flag(b *bytes.Buffer, key string, on bool) {
	v := 0
	if on {
		v = 1
	}
	fmt.Fprintf(b, "%s=%d\n", key, v)
}

func quoted(b *bytes.Buffer, key, value string) {
	fmt.Fprintf(b, "%s=\"%s\"\n", key, value)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
