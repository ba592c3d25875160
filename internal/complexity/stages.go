package complexity

import (
	"strings"

	"github.com/rendis/pathway/pkg/schema"
)

// Canonical stage ids.
const (
	StageInitialEvaluation  = "initial_evaluation"
	StageDiagnosisTreatment = "diagnosis_treatment"
	StageReEvaluation       = "re_evaluation"
	StageDisposition        = "disposition"
)

// DefaultStages returns the four lifecycle stages of an emergency care pathway.
func DefaultStages() []Stage {
	return []Stage{
		{
			ID:       StageInitialEvaluation,
			Name:     "Initial evaluation",
			Keywords: []string{"present", "triage", "arriv", "assess", "vital", "history", "exam", "initial"},
		},
		{
			ID:   StageDiagnosisTreatment,
			Name: "Diagnosis and treatment",
			Keywords: []string{"diagnos", "workup", "order", "lab", "imaging", "ekg", "ecg", "cxr", "x-ray",
				"troponin", "treat", "therapy", "administer", "medication", "antibiotic", "dose"},
		},
		{
			ID:       StageReEvaluation,
			Name:     "Re-evaluation",
			Keywords: []string{"re-evaluat", "reevaluat", "reassess", "re-assess", "repeat", "serial", "monitor", "recheck", "observation"},
		},
		{
			ID:       StageDisposition,
			Name:     "Disposition",
			Keywords: []string{"admit", "discharge", "transfer", "disposition", "follow-up", "follow up"},
		},
	}
}

// detectStages partitions stage ids into present and missing, both in
// configuration order. A stage is present when any node label contains one of
// its keywords, case-insensitively.
func detectStages(g *schema.Graph, stages []Stage) (present, missing []string) {
	labels := make([]string, 0, g.Len())
	for i := 0; i < g.Len(); i++ {
		labels = append(labels, strings.ToLower(g.At(i).Label))
	}

	present = []string{}
	missing = []string{}
	for _, s := range stages {
		if stageMatches(labels, s.Keywords) {
			present = append(present, s.ID)
		} else {
			missing = append(missing, s.ID)
		}
	}
	return present, missing
}

func stageMatches(labels, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, l := range labels {
			if strings.Contains(l, kw) {
				return true
			}
		}
	}
	return false
}
