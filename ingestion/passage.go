package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"

	"github.com/poiesic/retriever/core"
)

// Passage is one chunk of a source document, as produced by a chunker.
type Passage struct {
	Id         core.ID           `json:"id,omitempty"`
	Filename   string            `json:"filename"`
	PageNumber int               `json:"page_number"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ToRecord converts the passage to an unembedded record. Passages without
// an id get one derived from filename, page, chunk and text, so ingesting
// the same chunk twice yields the same id.
func (p Passage) ToRecord() *core.Record {
	page := strconv.Itoa(p.PageNumber)
	chunk := strconv.Itoa(p.ChunkIndex)

	metadata := make(map[string]string, len(p.Metadata)+3)
	maps.Copy(metadata, p.Metadata)
	metadata[core.MetadataFilename] = p.Filename
	metadata[core.MetadataPageNumber] = page
	metadata[core.MetadataChunkIndex] = chunk

	id := p.Id
	if id == "" {
		id = core.IDFromContent(p.Filename, page, chunk, p.Text)
	}

	return &core.Record{
		Id:       id,
		Passage:  p.Text,
		Metadata: metadata,
	}
}

// ReadPassages decodes newline-delimited JSON passages. Blank lines are
// skipped. Errors report the 1-based line number.
func ReadPassages(r io.Reader) ([]Passage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var passages []Passage
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var p Passage
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		passages = append(passages, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return passages, nil
}
