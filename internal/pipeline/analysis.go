// Package pipeline implements the Message Pipeline (C4): a single LLM
// call per message (or a batched call for backlog catch-up) that
// produces the full Analysis plus a head-routing decision, with the
// tolerant JSON-extraction cascade spec.md §4.2 requires of LLM output
// that isn't guaranteed to be clean JSON.
//
// The extraction cascade is grounded on
// theRebelliousNerd-codenerd/internal/perception/transducer_llm.go's
// extractJSON/parseResponse pair (brace-depth matching to pull a JSON
// object out of a markdown-wrapped response), extended here to also
// probe fenced code blocks and bracket-matched arrays per spec.md's
// four-step cascade.
package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"mira/internal/model"
)

// analysisPayload is the JSON shape the analysis prompt demands from the
// LLM provider.
type analysisPayload struct {
	Salience        float64  `json:"salience"`
	Mood            *string  `json:"mood"`
	Intensity       float64  `json:"intensity"`
	Intent          *string  `json:"intent"`
	Topics          []string `json:"topics"`
	Summary         *string  `json:"summary"`
	ContainsCode    bool     `json:"contains_code"`
	ProgrammingLang *string  `json:"programming_lang"`
	ContainsError   bool     `json:"contains_error"`
	ErrorType       *string  `json:"error_type"`
	ErrorSeverity   *string  `json:"error_severity"`
	ErrorFile       *string  `json:"error_file"`
	ShouldEmbed     *bool    `json:"should_embed"`
	SkipReason      *string  `json:"skip_reason"`
}

// batchAnalysisPayload is one element of the array the batch prompt
// demands, tagged with the index of the message it analyzes.
type batchAnalysisPayload struct {
	MessageIndex int `json:"message_index"`
	analysisPayload
}

var fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
var fencedAnyBlock = regexp.MustCompile("(?s)```\\w*\\s*(.*?)\\s*```")

// extractJSON implements spec.md §4.2's four-step probe order: (a) the
// whole string is valid JSON; (b) JSON inside a ```json fence; (c) JSON
// inside any fence; (d) the substring between the first brace/bracket and
// the matching last one.
func extractJSON(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	if m := fencedJSONBlock.FindStringSubmatch(raw); m != nil && json.Valid([]byte(m[1])) {
		return m[1], true
	}

	if m := fencedAnyBlock.FindStringSubmatch(raw); m != nil && json.Valid([]byte(m[1])) {
		return m[1], true
	}

	if candidate := bracketSubstring(raw, '{', '}'); candidate != "" {
		return candidate, true
	}
	if candidate := bracketSubstring(raw, '[', ']'); candidate != "" {
		return candidate, true
	}

	return "", false
}

// bracketSubstring returns the substring from the first open bracket to
// the matching last close bracket, without requiring it to be valid JSON
// — the caller re-validates via json.Unmarshal.
func bracketSubstring(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}
	end := strings.LastIndexByte(s, close)
	if end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// parseAnalysis runs the extraction cascade and unmarshals into a single
// analysisPayload, returning a PipelineError{analysis_parse} on failure.
func parseAnalysis(raw string) (analysisPayload, error) {
	jsonStr, ok := extractJSON(raw)
	if !ok {
		return analysisPayload{}, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: fmt.Errorf("no JSON found in response")}
	}
	var p analysisPayload
	if err := json.Unmarshal([]byte(jsonStr), &p); err != nil {
		return analysisPayload{}, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: err}
	}
	return p, nil
}

// parseBatchAnalysis runs the extraction cascade expecting a JSON array
// indexed by message_index.
func parseBatchAnalysis(raw string) ([]batchAnalysisPayload, error) {
	jsonStr, ok := extractJSON(raw)
	if !ok {
		return nil, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: fmt.Errorf("no JSON found in response")}
	}
	var arr []batchAnalysisPayload
	if err := json.Unmarshal([]byte(jsonStr), &arr); err != nil {
		return nil, &model.PipelineError{Kind: model.PipelineAnalysisParse, Err: err}
	}
	return arr, nil
}

// toAnalysis converts a parsed payload into a model.Analysis for
// messageID, clamping salience/intensity and computing the routing
// decision per spec.md §4.2.
func toAnalysis(messageID int64, p analysisPayload) model.Analysis {
	a := model.Analysis{
		MessageID:        messageID,
		Salience:         model.Clamp01(p.Salience),
		OriginalSalience: model.Clamp01(p.Salience),
		Mood:             p.Mood,
		Intensity:        model.Clamp01(p.Intensity),
		Intent:           p.Intent,
		Topics:           p.Topics,
		Summary:          p.Summary,
		ContainsCode:     p.ContainsCode,
		ProgrammingLang:  p.ProgrammingLang,
		ContainsError:    p.ContainsError,
		ErrorType:        p.ErrorType,
		ErrorSeverity:    p.ErrorSeverity,
		ErrorFile:        p.ErrorFile,
	}
	embed, _ := shouldEmbed(p)
	a.RoutedToHeads = routeHeads(a, embed)
	return a
}

// routeHeads implements spec.md §4.2's routing rule: default
// {recent, semantic}; add code iff contains_code and a language is set;
// summary is never added here (only the summarization engine adds it). A
// trivial message routes to {recent} only — embed reports whether this
// message actually gets embedded (spec.md §8 scenario 1: an "ok" message
// routes to recent alone, with no semantic embedding written), so a
// should_embed=false message never claims a semantic/code routing that
// embedAnalyzed will never act on.
func routeHeads(a model.Analysis, embed bool) []model.Head {
	if !embed {
		return []model.Head{model.HeadRecent}
	}
	heads := []model.Head{model.HeadRecent, model.HeadSemantic}
	if a.ContainsCode && a.ProgrammingLang != nil && *a.ProgrammingLang != "" {
		heads = append(heads, model.HeadCode)
	}
	return heads
}

// shouldEmbed reports whether analysis payload indicates the message is
// trivial enough to skip embedding (salience < 0.3 and no code/error),
// per spec.md §4.2's should_embed=false allowance.
func shouldEmbed(p analysisPayload) (bool, string) {
	if p.ShouldEmbed != nil {
		reason := ""
		if p.SkipReason != nil {
			reason = *p.SkipReason
		}
		return *p.ShouldEmbed, reason
	}
	if p.Salience < 0.3 && !p.ContainsCode && !p.ContainsError {
		return false, "trivial_message"
	}
	return true, ""
}
