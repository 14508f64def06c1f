// mock_engine.go - Mock analysis engine for testing
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CentreForDigitalHumanities/tscan/internal/engine"
	"github.com/CentreForDigitalHumanities/tscan/internal/models"
)

// EngineCall records one engine invocation.
type EngineCall struct {
	Config string
	Input  string
	// Lookup is the content of the parse lookup when the engine started.
	Lookup string
}

// MockEngine behaves like the analysis binary: for every document it writes
// the annotated XML and one statistics file per category next to the input,
// caches a parse in the input directory and appends it to the lookup it was
// given, writing the result to ../out.alpino_lookup.data.
type MockEngine struct {
	// Codes maps an input base name to the exit code returned for it. A
	// non-zero code writes no output.
	Codes map[string]int
	// Header is the first line of every statistics file.
	Header string
	// AfterRun is called after each document, with its position.
	AfterRun func(i int, input string)

	calls []EngineCall
	mu    sync.RWMutex
}

// NewMockEngine creates a mock engine that succeeds on every document.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		Codes:  make(map[string]int),
		Header: "document,words,sentences",
	}
}

func (m *MockEngine) Run(ctx context.Context, configPath, inputFile string) (int, error) {
	outputDir := filepath.Dir(configPath)
	lookupData, _ := os.ReadFile(filepath.Join(outputDir, "alpino_lookup.data"))

	m.mu.Lock()
	i := len(m.calls)
	m.calls = append(m.calls, EngineCall{Config: configPath, Input: inputFile, Lookup: string(lookupData)})
	code := m.Codes[filepath.Base(inputFile)]
	m.mu.Unlock()

	if code == 0 {
		if err := m.writeOutput(outputDir, inputFile, lookupData); err != nil {
			return 1, err
		}
	}
	if m.AfterRun != nil {
		m.AfterRun(i, inputFile)
	}
	return code, nil
}

func (m *MockEngine) writeOutput(outputDir, inputFile string, lookupData []byte) error {
	base := filepath.Base(inputFile)
	dir := filepath.Dir(inputFile)

	if err := os.WriteFile(inputFile+".tscan.xml", []byte("<FoLiA id=\""+base+"\"/>\n"), 0644); err != nil {
		return err
	}
	for _, c := range models.Categories {
		row := fmt.Sprintf("%s\n%s,%d,1\n", m.Header, base, len(base))
		if err := os.WriteFile(filepath.Join(dir, base+c.Suffix()), []byte(row), 0644); err != nil {
			return err
		}
	}

	sentence := SentenceFor(base)
	parse := "." + base + ".alpino.xml"
	if err := os.WriteFile(filepath.Join(dir, parse), []byte("<treebank>"+AlpinoTree(strings.Fields(sentence)...)+"</treebank>"), 0644); err != nil {
		return err
	}
	lookup := string(lookupData) + fmt.Sprintf("%s\tinput/%s\t1\n", sentence, parse)
	return os.WriteFile(filepath.Join(outputDir, "..", "out.alpino_lookup.data"), []byte(lookup), 0644)
}

// Ensure MockEngine implements engine.Engine
var _ engine.Engine = (*MockEngine)(nil)

// Test Helper Methods

// Calls returns the recorded invocations in order.
func (m *MockEngine) Calls() []EngineCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EngineCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SentenceFor is the sentence the mock engine parses for a document.
func SentenceFor(base string) string {
	return "Zin uit " + base
}

// AlpinoTree builds an alpino_ds element for the given words.
func AlpinoTree(words ...string) string {
	var b strings.Builder
	b.WriteString(`<alpino_ds version="1.6"><node begin="0" cat="top" id="0">`)
	for i, w := range words {
		fmt.Fprintf(&b, `<node begin="%d" end="%d" word="%s"/>`, i, i+1, w)
	}
	b.WriteString(`</node></alpino_ds>`)
	return b.String()
}
