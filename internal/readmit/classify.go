// Package readmit decides which inpatient admissions count as 30-day readmissions.
//
// Each beneficiary's admissions are sorted by admission date (claim id breaks
// ties) and scanned once, carrying the previous admission's discharge date and
// primary diagnosis forward. The comparison is always against the immediately
// preceding admission, whether or not that one qualified.
package readmit

import (
	"sort"
	"strings"
	"time"

	"github.com/gyeh/readmitstats/internal/model"
	"github.com/gyeh/readmitstats/internal/normalize"
)

// WindowDays is the readmission window measured from the previous discharge.
const WindowDays = 30

// Exclusion reasons recorded on non-qualifying events.
const (
	ExclusionNoPrior     = "no_prior_admission"
	ExclusionOutside     = "outside_window"
	ExclusionSameDay     = "same_day_as_discharge"
	ExclusionRehab       = "rehabilitation"
	ExclusionPsychiatric = "psychiatric"
	ExclusionAMA         = "left_against_medical_advice"
	ExclusionTransplant  = "planned_transplant"
)

const (
	rehabPrefix = "V57"
	amaCode     = "V642"
)

var psychiatricPrefixes = []string{"29", "30", "31"}

// Classifier labels admissions. The zero value is not usable; use NewClassifier.
type Classifier struct {
	transplants *TransplantTable
	window      int
}

// NewClassifier returns a Classifier using the given transplant exclusion table.
func NewClassifier(transplants *TransplantTable) *Classifier {
	return &Classifier{transplants: transplants, window: WindowDays}
}

// Result is the outcome of classifying a batch of admissions.
type Result struct {
	// Events holds one event per sequenced admission, grouped by beneficiary
	// (ascending id) and ordered within each beneficiary.
	Events []model.ReadmissionEvent
	// Dropped counts admissions without an admission or discharge date. They
	// are excluded from both numerator and denominator.
	Dropped int
}

// Readmissions returns the number of qualifying events.
func (r *Result) Readmissions() int {
	n := 0
	for i := range r.Events {
		if r.Events[i].Qualifies {
			n++
		}
	}
	return n
}

// Classify partitions admissions by beneficiary and classifies each sequence.
// Input order does not matter.
func (c *Classifier) Classify(admissions []model.Admission) Result {
	var res Result
	byBene := make(map[string][]model.Admission)
	for _, a := range admissions {
		if !a.Sequenceable() {
			res.Dropped++
			continue
		}
		byBene[a.BeneficiaryID] = append(byBene[a.BeneficiaryID], a)
	}

	ids := make([]string, 0, len(byBene))
	for id := range byBene {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res.Events = append(res.Events, c.ClassifySequence(byBene[id])...)
	}
	return res
}

// ClassifySequence classifies one beneficiary's admissions. Admissions missing a
// date are skipped; the slice is sorted in place.
func (c *Classifier) ClassifySequence(seq []model.Admission) []model.ReadmissionEvent {
	Sort(seq)

	events := make([]model.ReadmissionEvent, 0, len(seq))
	var prev *model.Admission
	for i := range seq {
		a := &seq[i]
		if !a.Sequenceable() {
			continue
		}
		ev := model.ReadmissionEvent{
			BeneficiaryID: a.BeneficiaryID,
			ClaimID:       a.ClaimID,
			AdmissionDate: *a.AdmissionDate,
			DischargeDate: *a.DischargeDate,
			Demographics:  a.Demographics,
		}
		if prev != nil {
			d := *prev.DischargeDate
			ev.PreviousDischargeDate = &d
			ev.PreviousDiagnosis = prev.PrimaryDiagnosis()
		}
		ev.Exclusion = c.exclusion(a, ev.PreviousDischargeDate)
		ev.Qualifies = ev.Exclusion == ""
		events = append(events, ev)
		prev = a
	}
	return events
}

// exclusion returns the first rule that keeps the admission from counting, or
// "" when it is a readmission.
func (c *Classifier) exclusion(a *model.Admission, prevDischarge *time.Time) string {
	if prevDischarge == nil {
		return ExclusionNoPrior
	}
	gap := normalize.DaysBetween(*prevDischarge, *a.AdmissionDate)
	if gap > c.window {
		return ExclusionOutside
	}
	if gap == 0 {
		return ExclusionSameDay
	}

	primary := a.PrimaryDiagnosis()
	if strings.HasPrefix(primary, rehabPrefix) {
		return ExclusionRehab
	}
	for _, p := range psychiatricPrefixes {
		if strings.HasPrefix(primary, p) {
			return ExclusionPsychiatric
		}
	}
	for _, dx := range a.Diagnoses {
		if dx == amaCode {
			return ExclusionAMA
		}
	}
	if _, ok := c.transplants.Category(primary, a.PrimaryProcedure()); ok {
		return ExclusionTransplant
	}
	return ""
}

// Sort orders admissions by admission date, then claim id. Admissions without an
// admission date sort last.
func Sort(seq []model.Admission) {
	sort.SliceStable(seq, func(i, j int) bool {
		ai, aj := seq[i].AdmissionDate, seq[j].AdmissionDate
		switch {
		case ai == nil && aj == nil:
			return seq[i].ClaimID < seq[j].ClaimID
		case ai == nil:
			return false
		case aj == nil:
			return true
		case !ai.Equal(*aj):
			return ai.Before(*aj)
		}
		return seq[i].ClaimID < seq[j].ClaimID
	})
}
