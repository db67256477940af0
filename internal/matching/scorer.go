// Package matching scores canonical jobs against a profile with a fixed,
// auditable linear model and explains every category it scores.
package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/textsim"
)

// Policy holds the neutral values used when a posting or profile is silent
// on a category. They are configuration so rankings stay explainable.
type Policy struct {
	// UndisclosedSalaryScore is the salary score of postings without a salary.
	UndisclosedSalaryScore float64 `json:"undisclosed_salary_score" mapstructure:"undisclosed-salary-score"`
	// NoRequirementsScore is the skill score of postings listing nothing to match.
	NoRequirementsScore float64 `json:"no_requirements_score" mapstructure:"no-requirements-score"`
	// UnknownExperienceScore is used when the profile has no experience level.
	UnknownExperienceScore float64 `json:"unknown_experience_score" mapstructure:"unknown-experience-score"`
	// OneStepExperienceScore is the experience score one level away.
	OneStepExperienceScore float64 `json:"one_step_experience_score" mapstructure:"one-step-experience-score"`
}

// DefaultPolicy treats silence as neutral.
var DefaultPolicy = Policy{
	UndisclosedSalaryScore: 50,
	NoRequirementsScore:    50,
	UnknownExperienceScore: 50,
	OneStepExperienceScore: 50,
}

// Categories are the per-category scores, each in [0,100].
// LocationOrRemote is max(Location, Remote).
type Categories struct {
	Skill            float64 `json:"skill"`
	Title            float64 `json:"title"`
	Experience       float64 `json:"experience"`
	Location         float64 `json:"location"`
	Remote           float64 `json:"remote"`
	LocationOrRemote float64 `json:"location_or_remote"`
	Salary           float64 `json:"salary"`
}

// Result is a MatchResult. It is recomputed, never updated in place.
type Result struct {
	JobID              string     `json:"job_id"`
	ProfileID          string     `json:"profile_id"`
	Overall            float64    `json:"overall"`
	Categories         Categories `json:"categories"`
	Explanations       []string   `json:"explanations"`
	ComputedAt         time.Time  `json:"computed_at"`
	JobUpdatedAt       time.Time  `json:"job_updated_at"`
	ProfileFingerprint string     `json:"profile_fingerprint"`
}

// Scorer is safe for concurrent use.
type Scorer struct {
	weights Weights
	policy  Policy
	now     func() time.Time
}

// Option customises a Scorer.
type Option func(*Scorer)

// WithClock sets the clock used for ComputedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// WithPolicy overrides the neutral values.
func WithPolicy(p Policy) Option {
	return func(s *Scorer) { s.policy = p }
}

// NewScorer validates the weights and returns a scorer.
func NewScorer(weights Weights, opts ...Option) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	s := &Scorer{
		weights: weights,
		policy:  DefaultPolicy,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Weights returns the model in use.
func (s *Scorer) Weights() Weights { return s.weights }

// Score scores a canonical job for a profile.
func (s *Scorer) Score(c *jobs.Canonical, p *profile.Profile) *Result {
	res := s.ScoreJob(c.Job, p)
	res.JobID = c.ID
	res.JobUpdatedAt = c.UpdatedAt
	return res
}

// ScoreJob scores a single normalised job.
func (s *Scorer) ScoreJob(job *jobs.Job, p *profile.Profile) *Result {
	var (
		cats  Categories
		notes = make([]string, 0, 5)
		note  string
	)

	cats.Skill, note = s.skill(job, p)
	notes = append(notes, note)

	cats.Title, note = title(job, p)
	notes = append(notes, note)

	cats.Experience, note = s.experience(job, p)
	notes = append(notes, note)

	cats.Location, cats.Remote, cats.LocationOrRemote, note = locationOrRemote(job, p)
	notes = append(notes, note)

	cats.Salary, note = s.salary(job, p)
	notes = append(notes, note)

	return &Result{
		ProfileID:          p.ID,
		Overall:            s.weights.Combine(cats),
		Categories:         cats,
		Explanations:       notes,
		ComputedAt:         s.now(),
		ProfileFingerprint: p.Fingerprint(),
	}
}

func (s *Scorer) skill(job *jobs.Job, p *profile.Profile) (float64, string) {
	requirements := job.Requirements
	derived := false
	if len(requirements) == 0 && len(job.NiceToHaves) == 0 {
		requirements = extractRequirements(job.Description)
		derived = true
	}

	items := buildItems(requirements, job.NiceToHaves)
	if len(items) == 0 {
		return s.policy.NoRequirementsScore, "skills: posting lists no requirements, neutral score"
	}

	matches := matchItems(items, p.Skills)
	score := skillScore(matches)

	var matched, missing []string
	for _, m := range matches {
		if m.skill != nil {
			matched = append(matched, fmt.Sprintf("%s %d/5", m.skill.Name, m.skill.Proficiency))
			continue
		}
		if m.item.required && len(missing) < maxMissingToQuote {
			missing = append(missing, m.item.text)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "skills: matched %d of %d items", len(matched), len(items))
	if derived {
		b.WriteString(" derived from the description")
	}
	if len(matched) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(matched, ", "))
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "; missing required: %s", strings.Join(missing, ", "))
	}
	return score, b.String()
}

func title(job *jobs.Job, p *profile.Profile) (float64, string) {
	if len(p.TargetTitles) == 0 {
		return 0, "title: profile has no target titles"
	}

	best, bestTitle := 0.0, ""
	for _, t := range p.TargetTitles {
		if sim := textsim.TitleSimilarity(job.Title, t); sim > best {
			best, bestTitle = sim, t
		}
	}
	if bestTitle == "" {
		return 0, fmt.Sprintf("title: %q resembles no target title", job.Title)
	}
	return best * 100, fmt.Sprintf("title: %q is %.0f%% similar to target %q", job.Title, best*100, bestTitle)
}

// InferLevel guesses the seniority of a posting from its title.
func InferLevel(jobTitle string) profile.Level {
	words := textsim.Words(textsim.Title(jobTitle))
	switch {
	case words["lead"] || words["principal"] || words["staff"] || words["head"] || words["director"]:
		return profile.LevelLead
	case words["senior"]:
		return profile.LevelSenior
	case words["junior"] || words["entry"] || words["intern"] || words["internship"] || words["graduate"] || words["trainee"]:
		return profile.LevelJunior
	default:
		return profile.LevelMid
	}
}

func (s *Scorer) experience(job *jobs.Job, p *profile.Profile) (float64, string) {
	level := InferLevel(job.Title)
	if p.Experience.Rank() < 0 {
		return s.policy.UnknownExperienceScore, fmt.Sprintf("experience: posting reads as %s, profile level unknown", level)
	}

	steps := level.Rank() - p.Experience.Rank()
	if steps < 0 {
		steps = -steps
	}

	switch steps {
	case 0:
		return 100, fmt.Sprintf("experience: %s posting matches %s profile", level, p.Experience)
	case 1:
		return s.policy.OneStepExperienceScore, fmt.Sprintf("experience: %s posting is one level from %s profile", level, p.Experience)
	default:
		return 0, fmt.Sprintf("experience: %s posting is %d levels from %s profile", level, steps, p.Experience)
	}
}

func remoteSatisfied(remote jobs.Remote, pref profile.RemotePreference) bool {
	switch remote {
	case jobs.RemoteRemote:
		return true
	case jobs.RemoteHybrid:
		return pref == profile.RemotePreferred
	default:
		return false
	}
}

// jobRemote treats a location that says "remote" as a remote job when the
// source left the category empty.
func jobRemote(job *jobs.Job) jobs.Remote {
	if job.Remote == jobs.RemoteUnknown && textsim.IsRemote(job.Location) {
		return jobs.RemoteRemote
	}
	return job.Remote
}

func locationOrRemote(job *jobs.Job, p *profile.Profile) (loc, remote, combined float64, note string) {
	bestLoc := ""
	for _, l := range p.PreferredLocations {
		if sim := textsim.LocationSimilarity(job.Location, l) * 100; sim > loc {
			loc, bestLoc = sim, l
		}
	}

	category := jobRemote(job)
	if remoteSatisfied(category, p.Remote) {
		remote = 100
	}

	combined = max(loc, remote)

	switch {
	case remote == 100 && remote >= loc:
		note = fmt.Sprintf("location: %s option satisfies %s remote preference", category, p.Remote)
	case bestLoc != "":
		note = fmt.Sprintf("location: %q is %.0f%% similar to preferred %q", job.Location, loc, bestLoc)
	case len(p.PreferredLocations) == 0:
		note = "location: profile has no preferred locations and the remote preference is not met"
	default:
		note = fmt.Sprintf("location: %q matches no preferred location", job.Location)
	}
	return loc, remote, combined, note
}

func (s *Scorer) salary(job *jobs.Job, p *profile.Profile) (float64, string) {
	floor := p.SalaryMin
	if floor <= 0 {
		return 100, "salary: profile sets no salary floor"
	}
	if !job.HasSalary() {
		return s.policy.UndisclosedSalaryScore, "salary: not disclosed, neutral score"
	}

	best := 0.0
	if job.SalaryMax != nil {
		best = *job.SalaryMax
	}
	if job.SalaryMin != nil && *job.SalaryMin > best {
		best = *job.SalaryMin
	}

	if best >= floor {
		return 100, fmt.Sprintf("salary: up to %s meets floor %s", humanize.Commaf(best), humanize.Commaf(floor))
	}
	score := best / floor * 100
	return score, fmt.Sprintf("salary: up to %s covers %.0f%% of floor %s", humanize.Commaf(best), score, humanize.Commaf(floor))
}
