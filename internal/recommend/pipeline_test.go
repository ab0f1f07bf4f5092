package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/registry"
	"github.com/benvon/fictag/internal/vocabulary"
)

const (
	responseAddFandom = `{"content":{"toAdd":[{"name":"Example Fandom","type":"fandom","reason":"Story is set in this world."}],"toRemove":[]}}`
	responseAddComfort = `Sure! Here are my suggestions:
` + "```json" + `
{"content":{"toAdd":[{"name":"Hurt/Comfort","type":"freeform","reason":"Sam tends to Alex's injuries {after the fight}."}],"toRemove":[]}}
` + "```"
)

func TestSubmit_ScenarioA_AddFromVocabulary(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom}}
	p, _ := newTestPipeline(backend)
	work := models.NewWork("Title", "A story set in the example world.", nil)

	set, err := p.Submit(context.Background(), work)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(set.ToAdd) != 1 || len(set.ToRemove) != 0 {
		t.Fatalf("Submit() = %d add / %d remove, want 1 / 0", len(set.ToAdd), len(set.ToRemove))
	}

	got, ok := p.Lookup(work.ID)
	if !ok {
		t.Fatal("Lookup() found nothing after successful submit")
	}
	want := models.Tag{Name: "Example Fandom", Type: "fandom", Reason: "Story is set in this world."}
	if got.ToAdd[0] != want {
		t.Errorf("ToAdd[0] = %+v, want %+v", got.ToAdd[0], want)
	}
	if got.Work != work {
		t.Error("set should reference the submitted work")
	}
}

func TestSubmit_ScenarioB_Duplication(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom}}
	p, reg := newTestPipeline(backend)
	work := models.NewWork("Title", "Body", []string{"Example Fandom"})

	_, err := p.Submit(context.Background(), work)
	var invalid *InvalidRecommendationError
	if !errors.As(err, &invalid) {
		t.Fatalf("Submit() error = %v, want InvalidRecommendationError", err)
	}
	if !invalid.Has(ViolationDuplication) {
		t.Errorf("violations = %+v, want a duplication", invalid.Violations)
	}
	if reg.Len() != 0 {
		t.Error("nothing should be stored on validation failure")
	}
}

func TestSubmit_ScenarioC_UnsupportedRemoval(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{
		`{"content":{"toAdd":[],"toRemove":[{"name":"Ghost Tag","type":"freeform","reason":"Not in the story."}]}}`,
	}}
	p, _ := newTestPipeline(backend)
	work := models.NewWork("Title", "Body", []string{})

	_, err := p.Submit(context.Background(), work)
	var invalid *InvalidRecommendationError
	if !errors.As(err, &invalid) {
		t.Fatalf("Submit() error = %v, want InvalidRecommendationError", err)
	}
	if !invalid.Has(ViolationUnsupportedRemoval) {
		t.Errorf("violations = %+v, want unsupported removal", invalid.Violations)
	}
	if _, ok := p.Lookup(work.ID); ok {
		t.Error("nothing should be stored")
	}
}

func TestSubmit_ScenarioD_ProseResponse(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{"I think this story would be best tagged as a romance."}}
	p, _ := newTestPipeline(backend)

	_, err := p.Submit(context.Background(), models.NewWork("Title", "Body", nil))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Submit() error = %v, want ErrMalformedResponse", err)
	}
}

func TestSubmit_ScenarioE_ReplaceKeepsOnlySecond(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom, responseAddComfort}}
	p, reg := newTestPipeline(backend)
	work := models.NewWork("Title", "Body", nil)

	if _, err := p.Submit(context.Background(), work); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if _, err := p.Submit(context.Background(), work); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	got, ok := p.Lookup(work.ID)
	if !ok {
		t.Fatal("Lookup() found nothing")
	}
	if len(got.ToAdd) != 1 || got.ToAdd[0].Name != "Hurt/Comfort" {
		t.Errorf("ToAdd = %+v, want only Hurt/Comfort", got.ToAdd)
	}
	if reg.Len() != 1 {
		t.Errorf("registry has %d entries, want 1", reg.Len())
	}
}

func TestSubmit_ReplaceKeepsPriorSetOnFailure(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom, "no json here"}}
	p, _ := newTestPipeline(backend)
	work := models.NewWork("Title", "Body", nil)

	first, err := p.Submit(context.Background(), work)
	if err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if _, err := p.Submit(context.Background(), work); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("second Submit() error = %v, want ErrMalformedResponse", err)
	}

	got, ok := p.Lookup(work.ID)
	if !ok || got != first {
		t.Error("prior set should survive a failed resubmission")
	}
}

func TestSubmit_RejectPolicy(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom}}
	p, _ := newTestPipeline(backend, WithPolicy(PolicyReject))
	work := models.NewWork("Title", "Body", nil)

	if _, err := p.Submit(context.Background(), work); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	_, err := p.Submit(context.Background(), work)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second Submit() error = %v, want ErrAlreadySubmitted", err)
	}
	if backend.calls() != 1 {
		t.Errorf("backend called %d times, want 1", backend.calls())
	}

	// A distinct work with identical content is a fresh entity.
	twin := models.NewWork("Title", "Body", nil)
	if _, err := p.Submit(context.Background(), twin); err != nil {
		t.Errorf("Submit(twin) error = %v", err)
	}
}

// racingBackend stores a competing set for the work while its call is in flight.
type racingBackend struct {
	reg      *registry.WorkRegistry
	work     *models.Work
	response string
}

func (b *racingBackend) Generate(context.Context, string) (string, error) {
	b.reg.Store(&models.RecommendationSet{Work: b.work, ToAdd: []models.Tag{}, ToRemove: []models.Tag{}})
	return b.response, nil
}

func TestSubmit_RejectPolicyAtCommit(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	work := models.NewWork("Title", "Body", nil)
	backend := &racingBackend{reg: reg, work: work, response: responseAddFandom}
	p := New(backend, staticVocab(testVocabulary()), reg, WithPolicy(PolicyReject))

	_, err := p.Submit(context.Background(), work)
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("Submit() error = %v, want ErrAlreadySubmitted", err)
	}

	got, ok := reg.Lookup(work.ID)
	if !ok {
		t.Fatal("Lookup() found nothing")
	}
	if len(got.ToAdd) != 0 {
		t.Errorf("competing set was overwritten: ToAdd = %+v", got.ToAdd)
	}
}

func TestSubmit_StrayBraceBeforePayload(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{"I could not { decide at first, but here it is: " + responseAddFandom}}
	p, _ := newTestPipeline(backend)

	set, err := p.Submit(context.Background(), models.NewWork("Title", "Body", nil))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(set.ToAdd) != 1 || set.ToAdd[0].Name != "Example Fandom" {
		t.Errorf("ToAdd = %+v, want Example Fandom", set.ToAdd)
	}
}

func TestSubmit_CategoryUsesVocabularySpelling(t *testing.T) {
	t.Parallel()

	response := `{"content":{
		"toAdd":[
			{"name":"Example Fandom","type":"Fandom","reason":"Set in this world."},
			{"name":"Alex Example","type":"CHARACTER","reason":"Narrator."}
		],
		"toRemove":[
			{"name":"Fluff","type":"Freeform","reason":"The story is bleak."}
		]}}`
	p, _ := newTestPipeline(&mockBackend{responses: []string{response}})
	work := models.NewWork("Title", "Body", []string{"Fluff"})

	set, err := p.Submit(context.Background(), work)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if set.ToAdd[0].Type != "fandom" || set.ToAdd[1].Type != "character" {
		t.Errorf("ToAdd types = %q, %q; want fandom, character", set.ToAdd[0].Type, set.ToAdd[1].Type)
	}
	if set.ToRemove[0].Type != "freeform" {
		t.Errorf("ToRemove type = %q, want freeform", set.ToRemove[0].Type)
	}

	report, err := p.Render(work.ID)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(report, "\nFandom:\n") || !strings.Contains(report, "\nfandom:\n") {
		t.Errorf("report should group under the vocabulary's category spelling:\n%s", report)
	}
}

func TestSubmit_StampsCreatedAt(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p, _ := newTestPipeline(&mockBackend{responses: []string{responseAddFandom}},
		WithClock(func() time.Time { return stamp }))

	set, err := p.Submit(context.Background(), models.NewWork("Title", "Body", nil))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !set.CreatedAt.Equal(stamp) {
		t.Errorf("CreatedAt = %v, want %v", set.CreatedAt, stamp)
	}
}

func TestSubmit_BackendError(t *testing.T) {
	t.Parallel()

	cause := errors.New("quota exceeded")
	backend := &mockBackend{err: cause}
	p, reg := newTestPipeline(backend)

	_, err := p.Submit(context.Background(), models.NewWork("Title", "Body", nil))
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Submit() error = %v, want BackendError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("BackendError should unwrap to the backend's error")
	}
	if reg.Len() != 0 {
		t.Error("nothing should be stored")
	}
}

func TestSubmit_VocabularyUnavailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source vocabulary.Source
	}{
		{
			name: "load error",
			source: vocabulary.SourceFunc(func(context.Context) ([]models.VocabularyEntry, error) {
				return nil, errors.New("open tags.csv: no such file")
			}),
		},
		{
			name:   "empty vocabulary",
			source: staticVocab(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &mockBackend{responses: []string{responseAddFandom}}
			p := New(backend, tt.source, registry.New())
			_, err := p.Submit(context.Background(), models.NewWork("Title", "Body", nil))
			if !errors.Is(err, ErrVocabularyUnavailable) {
				t.Fatalf("Submit() error = %v, want ErrVocabularyUnavailable", err)
			}
			if backend.calls() != 0 {
				t.Error("backend should not be called without a vocabulary")
			}
		})
	}
}

func TestSubmit_ShapeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
	}{
		{name: "missing content", response: `{"toAdd":[],"toRemove":[]}`},
		{name: "missing toRemove", response: `{"content":{"toAdd":[]}}`},
		{name: "null toAdd", response: `{"content":{"toAdd":null,"toRemove":[]}}`},
		{name: "toAdd not an array", response: `{"content":{"toAdd":{},"toRemove":[]}}`},
		{name: "unbalanced", response: `{"content":{"toAdd":[],"toRemove":[]}`},
		{name: "invalid json", response: `{content: toAdd}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newTestPipeline(&mockBackend{responses: []string{tt.response}})
			_, err := p.Submit(context.Background(), models.NewWork("Title", "Body", nil))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Submit() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestSubmit_AccumulatesAllViolations(t *testing.T) {
	t.Parallel()

	response := `{"content":{
		"toAdd":[
			{"name":"Example Fandom","type":"fandom","reason":""},
			{"name":"Invented Tag","type":"freeform","reason":"Seems fitting."}
		],
		"toRemove":[
			{"name":"Ghost Tag","type":"freeform","reason":"Unsupported."},
			{"name":"Example Fandom","type":" ","reason":"Wrong fandom."}
		]}}`
	p, _ := newTestPipeline(&mockBackend{responses: []string{response}})
	work := models.NewWork("Title", "Body", []string{"Example Fandom"})

	_, err := p.Submit(context.Background(), work)
	var invalid *InvalidRecommendationError
	if !errors.As(err, &invalid) {
		t.Fatalf("Submit() error = %v, want InvalidRecommendationError", err)
	}

	kinds := map[ViolationKind]int{}
	for _, v := range invalid.Violations {
		kinds[v.Kind]++
	}
	want := map[ViolationKind]int{
		ViolationMissingField:       2,
		ViolationDuplication:        1,
		ViolationOutOfVocabulary:    1,
		ViolationUnsupportedRemoval: 1,
	}
	for k, n := range want {
		if kinds[k] != n {
			t.Errorf("%s violations = %d, want %d (all: %+v)", k, kinds[k], n, invalid.Violations)
		}
	}
	if !strings.Contains(err.Error(), "5 violation(s)") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSubmit_StoredSetInvariants(t *testing.T) {
	t.Parallel()

	response := `{"content":{
		"toAdd":[
			{"name":"Alex Example","type":"character","reason":"Main character."},
			{"name":"Hurt/Comfort","type":"Freeform","reason":"Injury recovery arc."}
		],
		"toRemove":[
			{"name":"Fluff","type":"freeform","reason":"The story is bleak."}
		]}}`
	p, _ := newTestPipeline(&mockBackend{responses: []string{response}})
	work := models.NewWork("Title", "Body", []string{"Fluff", "Sam Sample"})

	set, err := p.Submit(context.Background(), work)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	for _, tag := range set.ToAdd {
		if work.HasAuthorTag(tag.Name) {
			t.Errorf("added tag %q is already an author tag", tag.Name)
		}
	}
	for _, tag := range set.ToRemove {
		if !work.HasAuthorTag(tag.Name) {
			t.Errorf("removed tag %q is not an author tag", tag.Name)
		}
	}
	for _, tag := range append(append([]models.Tag{}, set.ToAdd...), set.ToRemove...) {
		if tag.Name == "" || tag.Type == "" || tag.Reason == "" {
			t.Errorf("tag has empty field: %+v", tag)
		}
	}
	if set.ToAdd[0].Name != "Alex Example" || set.ToAdd[1].Name != "Hurt/Comfort" {
		t.Error("order should be preserved as received")
	}
}

func TestSubmit_PromptContents(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom}}
	p, _ := newTestPipeline(backend)
	work := models.NewWork("The Long Road", "Alex walked home.", []string{"Angst", "Road Trip"})

	if _, err := p.Submit(context.Background(), work); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	prompt := backend.prompts[0]
	for _, want := range []string{
		"The Long Road",
		"Alex walked home.",
		"Angst\nRoad Trip",
		"fandom,Example Fandom,1200",
		`"toAdd"`,
		`"toRemove"`,
		"not evidence",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPipeline_RemoveAndQueries(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom}}
	p, _ := newTestPipeline(backend)
	work := models.NewWork("Title", "Body", nil)

	if _, err := p.Remove(work.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(miss) error = %v, want ErrNotFound", err)
	}
	if _, err := p.Organize(work.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Organize(miss) error = %v, want ErrNotFound", err)
	}
	if _, err := p.Render(work.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Render(miss) error = %v, want ErrNotFound", err)
	}

	if _, err := p.Submit(context.Background(), work); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	report, err := p.Render(work.ID)
	if err != nil || !strings.Contains(report, "Example Fandom: Story is set in this world.") {
		t.Errorf("Render() = %q, %v", report, err)
	}

	if _, err := p.Remove(work.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := p.Lookup(work.ID); ok {
		t.Error("Lookup() after Remove() should be absent")
	}
	if err := p.RemoveMany([]uuid.UUID{work.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveMany(miss) error = %v, want ErrNotFound", err)
	}
}

func TestSubmit_ConcurrentDifferentWorks(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{responses: []string{responseAddFandom}}
	p, reg := newTestPipeline(backend)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			work := models.NewWork(fmt.Sprintf("Work %d", i), "Body", nil)
			if _, err := p.Submit(context.Background(), work); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Submit() error = %v", err)
	}
	if reg.Len() != n {
		t.Errorf("registry has %d entries, want %d", reg.Len(), n)
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyReplace},
		{in: "replace", want: PolicyReplace},
		{in: " Reject ", want: PolicyReject},
		{in: "merge", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
