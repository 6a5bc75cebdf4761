// Package catalog loads the questionnaire and chunk corpus from YAML files
// and checks them for layout hermeticity before they enter validation: the
// questionnaire must cover every dimension with exactly the configured
// question count, and the corpus must provide exactly one chunk per
// (policy area, dimension) cell.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"scoreflow/internal/config"
	"scoreflow/internal/logging"
	"scoreflow/internal/schema"
)

type questionFile struct {
	Questions []map[string]any `yaml:"questions"`
}

type chunkFile struct {
	Chunks []map[string]any `yaml:"chunks"`
}

// LoadQuestions reads the questionnaire file into raw records. No validation
// happens here beyond YAML well-formedness; the schema gate owns field-level
// checks.
func LoadQuestions(path string) ([]schema.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading questionnaire %s: %w", path, err)
	}
	var qf questionFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing questionnaire %s: %w", path, err)
	}
	records := make([]schema.RawRecord, 0, len(qf.Questions))
	for _, q := range qf.Questions {
		records = append(records, schema.RawRecord(q))
	}
	logging.Catalog("loaded %d question records from %s", len(records), path)
	return records, nil
}

// LoadChunks reads the chunk corpus file into raw records.
func LoadChunks(path string) ([]schema.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chunk corpus %s: %w", path, err)
	}
	var cf chunkFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing chunk corpus %s: %w", path, err)
	}
	records := make([]schema.RawRecord, 0, len(cf.Chunks))
	for _, c := range cf.Chunks {
		records = append(records, schema.RawRecord(c))
	}
	logging.Catalog("loaded %d chunk records from %s", len(records), path)
	return records, nil
}

// CheckQuestionLayout verifies the questionnaire shape against the plan
// config: every configured dimension carries exactly QuestionsPerDim
// questions and no unknown dimensions appear. Records missing a usable
// dimension_id are reported but left for the schema gate to reject.
func CheckQuestionLayout(records []schema.RawRecord, cfg config.PlanConfig) []string {
	var problems []string
	known := make(map[string]bool, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		known[d] = true
	}

	counts := make(map[string]int)
	for i, rec := range records {
		dim, ok := rec["dimension_id"].(string)
		if !ok || dim == "" {
			problems = append(problems, fmt.Sprintf("question record %d has no usable dimension_id", i))
			continue
		}
		if !known[dim] {
			problems = append(problems, fmt.Sprintf("question record %d references unknown dimension %s", i, dim))
			continue
		}
		counts[dim]++
	}
	for _, dim := range cfg.Dimensions {
		if counts[dim] != cfg.QuestionsPerDim {
			problems = append(problems, fmt.Sprintf("dimension %s has %d questions, want %d", dim, counts[dim], cfg.QuestionsPerDim))
		}
	}
	return problems
}

// CheckChunkLayout verifies corpus hermeticity: exactly one chunk per
// (policy area, dimension) cell, no unknown cells, no gaps.
func CheckChunkLayout(records []schema.RawRecord, cfg config.PlanConfig) []string {
	var problems []string
	knownPA := make(map[string]bool, len(cfg.PolicyAreas))
	for _, pa := range cfg.PolicyAreas {
		knownPA[pa] = true
	}
	knownDim := make(map[string]bool, len(cfg.Dimensions))
	for _, d := range cfg.Dimensions {
		knownDim[d] = true
	}

	type cell struct{ pa, dim string }
	counts := make(map[cell]int)
	for i, rec := range records {
		pa, okPA := rec["policy_area_id"].(string)
		dim, okDim := rec["dimension_id"].(string)
		if !okPA || pa == "" || !okDim || dim == "" {
			problems = append(problems, fmt.Sprintf("chunk record %d has no usable routing key", i))
			continue
		}
		if !knownPA[pa] || !knownDim[dim] {
			problems = append(problems, fmt.Sprintf("chunk record %d occupies unknown cell (%s, %s)", i, pa, dim))
			continue
		}
		counts[cell{pa, dim}]++
	}

	var missing, extra []string
	for _, pa := range cfg.PolicyAreas {
		for _, dim := range cfg.Dimensions {
			switch n := counts[cell{pa, dim}]; {
			case n == 0:
				missing = append(missing, fmt.Sprintf("(%s, %s)", pa, dim))
			case n > 1:
				extra = append(extra, fmt.Sprintf("(%s, %s) x%d", pa, dim, n))
			}
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	for _, m := range missing {
		problems = append(problems, "missing chunk for cell "+m)
	}
	for _, x := range extra {
		problems = append(problems, "multiple chunks for cell "+x)
	}
	return problems
}

// Load reads and layout-checks both inputs in one call. Layout problems are
// hard errors here: a non-hermetic corpus can never assemble a full plan, so
// there is no point feeding it further down the pipeline.
func Load(questionPath, chunkPath string, cfg config.PlanConfig) ([]schema.RawRecord, []schema.RawRecord, error) {
	questions, err := LoadQuestions(questionPath)
	if err != nil {
		return nil, nil, err
	}
	chunks, err := LoadChunks(chunkPath)
	if err != nil {
		return nil, nil, err
	}
	if problems := CheckQuestionLayout(questions, cfg); len(problems) > 0 {
		return nil, nil, fmt.Errorf("questionnaire layout check failed: %d problems, first: %s", len(problems), problems[0])
	}
	if problems := CheckChunkLayout(chunks, cfg); len(problems) > 0 {
		return nil, nil, fmt.Errorf("chunk corpus layout check failed: %d problems, first: %s", len(problems), problems[0])
	}
	return questions, chunks, nil
}
