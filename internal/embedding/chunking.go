package embedding

import (
	"strings"

	"mira/internal/model"
)

// approxCharsPerToken is the teacher's own rule of thumb
// (theRebelliousNerd-codenerd/internal/embedding/engine.go comments
// reference the same ~4 chars/token approximation used by most tokenizer
// estimators) for converting the semantic chunk's ~500 token target and
// 50 token overlap into character counts without pulling in a tokenizer.
const approxCharsPerToken = 4

const (
	semanticTargetChars  = 500 * approxCharsPerToken
	semanticOverlapChars = 50 * approxCharsPerToken
)

// ChunkSemantic splits content at paragraph then sentence boundaries,
// targeting ~500 tokens per chunk with a 50-token overlap between
// consecutive chunks, per spec.md §4.1.
func ChunkSemantic(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= semanticTargetChars {
		return []string{content}
	}

	paragraphs := splitParagraphs(content)
	units := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if len(p) <= semanticTargetChars {
			units = append(units, p)
			continue
		}
		units = append(units, splitSentences(p)...)
	}

	return packWithOverlap(units, semanticTargetChars, semanticOverlapChars)
}

// ChunkForHead applies the head-specific chunking rule from spec.md §4.1.
// codeElements is the pre-extracted whole-element content for the code
// head (from C5); it is never re-chunked here.
func ChunkForHead(head model.Head, content string, codeElements []string) []string {
	switch head {
	case model.HeadSemantic:
		return ChunkSemantic(content)
	case model.HeadCode:
		out := make([]string, len(codeElements))
		copy(out, codeElements)
		return out
	case model.HeadSummary:
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{content}
	default: // model.HeadRecent and anything else: no chunking
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []string{content}
	}
}

func splitParagraphs(content string) []string {
	raw := strings.Split(content, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple boundary splitter on ./!/? followed by
// whitespace; good enough for chunk-sizing purposes without pulling in a
// full sentence tokenizer.
func splitSentences(paragraph string) []string {
	var out []string
	start := 0
	for i, r := range paragraph {
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(paragraph) || paragraph[i+1] == ' ' || paragraph[i+1] == '\n' {
				sentence := strings.TrimSpace(paragraph[start : i+1])
				if sentence != "" {
					out = append(out, sentence)
				}
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(paragraph[start:]); rest != "" {
		out = append(out, rest)
	}
	if len(out) == 0 {
		return []string{paragraph}
	}
	return out
}

// packWithOverlap greedily accumulates units into chunks near targetChars,
// carrying the trailing overlapChars of each chunk into the start of the
// next so neighboring chunks share context.
func packWithOverlap(units []string, targetChars, overlapChars int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() string {
		s := cur.String()
		cur.Reset()
		return s
	}

	for _, u := range units {
		if cur.Len() > 0 && cur.Len()+len(u)+1 > targetChars {
			chunk := flush()
			chunks = append(chunks, chunk)
			if overlapChars > 0 && len(chunk) > overlapChars {
				cur.WriteString(chunk[len(chunk)-overlapChars:])
				cur.WriteString(" ")
			}
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(u)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, flush())
	}
	return chunks
}
