package scenario

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_Creation(t *testing.T) {
	sc := New("stats page",
		Navigate("/app/stats"),
		WaitFor("h1:has-text('İstatistikler ve İlerleme')"),
		Screenshot("stats.png"),
	)

	assert.Equal(t, "stats page", sc.Name)
	assert.Len(t, sc.Steps, 3)
	assert.Equal(t, StepNavigate, sc.Steps[0].Kind)
	assert.Equal(t, "/app/stats", sc.Steps[0].URL)
	assert.NoError(t, sc.Validate())
}

func TestStep_Target(t *testing.T) {
	assert.Equal(t, "button[data-selected]", Click("button[data-selected]").Target())
	assert.Equal(t, "text=Profiliniz güncellendi.", AssertText("Profiliniz güncellendi.").Target())
	assert.Equal(t, "", Step{Kind: StepClick}.Target())
}

func TestStep_Timeout(t *testing.T) {
	def := 5 * time.Second
	assert.Equal(t, def, WaitFor("#main").Timeout(def))
	assert.Equal(t, 250*time.Millisecond, WaitFor("#main").WithTimeout(250*time.Millisecond).Timeout(def))
}

func TestStep_Validate(t *testing.T) {
	cases := []struct {
		name string
		step Step
		ok   bool
	}{
		{"navigate", Navigate("/login"), true},
		{"navigate networkidle", NavigateUntil("/app", WaitNetworkIdle), true},
		{"navigate without url", Step{Kind: StepNavigate}, false},
		{"navigate bad policy", NavigateUntil("/app", "whenever"), false},
		{"wait for text", WaitForText("Profil Resmi"), true},
		{"wait without target", Step{Kind: StepWaitFor}, false},
		{"click without selector", Click(""), false},
		{"screenshot default name", Screenshot(""), true},
		{"screenshot escaping dir", Screenshot("../outside.png"), false},
		{"screenshot absolute", Screenshot(filepath.Join(string(filepath.Separator), "tmp", "x.png")), false},
		{"settle", Settle(time.Second), true},
		{"settle zero", Step{Kind: StepSettle}, false},
		{"unknown kind", Step{Kind: "hover", Selector: "a"}, false},
		{"missing kind", Step{}, false},
		{"negative timeout", Step{Kind: StepClick, Selector: "a", TimeoutMS: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.step.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateAll(t *testing.T) {
	assert.Error(t, ValidateAll(nil))

	err := ValidateAll([]Scenario{
		New("Stats Page", Navigate("/app/stats")),
		New("stats page!", Navigate("/app/stats")),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats-page")

	assert.Error(t, ValidateAll([]Scenario{New("empty")}))
	assert.NoError(t, ValidateAll([]Scenario{
		New("login", Navigate("/login")),
		New("dashboard", Navigate("/app")),
	}))
}

func TestScenario_ValidateArtifactNames(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr string
	}{
		{"distinct paths", []Step{Navigate("/app/profile"), Screenshot("profile_page.png"), Navigate("/app/stats"), Screenshot("header_avatar.png")}, ""},
		{"two defaults", []Step{Navigate("/"), Screenshot(""), Screenshot("")}, ""},
		{"same path twice", []Step{Navigate("/"), Screenshot("a.png"), Screenshot("a.png")}, `"a.png" collides with the screenshot of step 1`},
		{"same path after cleaning", []Step{Navigate("/"), Screenshot("shots/a.png"), Screenshot("shots/./a.png")}, "collides"},
		{"path matches a default name", []Step{Navigate("/"), Screenshot(""), Screenshot("step-01.png")}, `"step-01.png" collides with the screenshot of step 1`},
		{"default matches an earlier path", []Step{Navigate("/"), Screenshot("step-02.png"), Screenshot("")}, "collides"},
		{"path matches a failure snapshot", []Step{Navigate("/"), Screenshot("step-00-failure.html")}, "collides with the failure snapshot of step 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New("shots", tt.steps...).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStep_ArtifactName(t *testing.T) {
	assert.Equal(t, "step-03.png", Screenshot("").ArtifactName(3))
	assert.Equal(t, "shots/a.png", Screenshot("shots/./a.png").ArtifactName(3))
	assert.Equal(t, "step-03-failure.html", SnapshotName(3))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "istatistikler-ve-ilerleme", Slugify("İstatistikler ve İlerleme"))
	assert.Equal(t, "mobile-stats-iphone-13", Slugify("Mobile stats (iPhone 13)"))
	assert.Equal(t, "profil-guncellendi", Slugify("  Profil güncellendi  "))
	assert.Equal(t, "istatistikler-sayfasi", Slugify("İstatistikler sayfası"))
	assert.Equal(t, "scenario", Slugify("!!!"))
}

func TestSummarize(t *testing.T) {
	results := []RunResult{
		{Scenario: "a", Status: StatusPassed},
		{Scenario: "b", Status: StatusFailed},
		{Scenario: "c", Status: StatusSkipped},
		{Scenario: "d", Status: StatusPassed},
	}
	s := Summarize(results)
	assert.Equal(t, Summary{Total: 4, Passed: 2, Failed: 1, Skipped: 1}, s)
	assert.True(t, AnyFailed(results))
	assert.False(t, AnyFailed(results[:1]))
}

func TestRunResult_ArtifactPaths(t *testing.T) {
	r := RunResult{ArtifactDir: filepath.Join("out", "stats"), Artifacts: []string{"stats.png", "header.png"}}
	assert.Equal(t, []string{
		filepath.Join("out", "stats", "stats.png"),
		filepath.Join("out", "stats", "header.png"),
	}, r.ArtifactPaths())

	start := time.Now()
	r.StartedAt = start
	assert.Zero(t, r.Duration())
	r.FinishedAt = start.Add(2 * time.Second)
	assert.Equal(t, 2*time.Second, r.Duration())
}
