package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunterwarburton/medsage/internal/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadCreatesMissingDirectories(t *testing.T) {
	root := filepath.Join(t.TempDir(), "fresh")
	b := NewBuilder(root)

	require.NoError(t, b.Load(context.Background()))
	assert.True(t, b.Loaded())
	assert.Empty(t, b.Records())
	for _, name := range Names(DefaultConfigs()) {
		info, err := os.Stat(filepath.Join(root, name))
		require.NoError(t, err, name)
		assert.True(t, info.IsDir())
	}
}

func TestTabularRecords(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "diabetes", "diabetes.csv"),
		"Pregnancies,Glucose,BloodPressure,SkinThickness,Insulin,BMI,DiabetesPedigreeFunction,Age,Outcome\n"+
			"6,148,72,35,0,33.6,0.627,50,1\n"+
			"1,85,66,29,0,26.6,0.351,31,0\n")

	b := NewBuilder(root)
	require.NoError(t, b.Load(context.Background()))

	recs := b.DatasetRecords("diabetes")
	require.Len(t, recs, 2)
	r := recs[0]
	assert.Equal(t, "diabetes_diabetes_0", r.ID)
	assert.Equal(t, core.RecordTabular, r.Type)
	assert.Equal(t, "Medical data from diabetes: Outcome: 1 Diabetes risk factors: Pregnancies=6, Glucose=148, BloodPressure=72, BMI=33.6, Age=50", r.SearchText)
	assert.Equal(t, "Outcome: 1", r.Snippet)
	assert.Equal(t, "148", r.Data["Glucose"])
	assert.Equal(t, 33.6, r.Metadata["BMI"])
	assert.Equal(t, filepath.Join(root, "diabetes", "diabetes.csv"), r.FilePath)
}

func TestRecordIDsUniqueAcrossFiles(t *testing.T) {
	root := t.TempDir()
	header := "Pregnancies,Glucose,BloodPressure,SkinThickness,Insulin,BMI,DiabetesPedigreeFunction,Age,Outcome\n"
	writeFile(t, filepath.Join(root, "diabetes", "a.csv"), header+"6,148,72,35,0,33.6,0.627,50,1\n")
	writeFile(t, filepath.Join(root, "diabetes", "b.csv"), header+"1,85,66,29,0,26.6,0.351,31,0\n")
	writeFile(t, filepath.Join(root, "pubmedqa", "one.json"), `[{"question": "Is aspirin useful?", "final_decision": "maybe"}]`)
	writeFile(t, filepath.Join(root, "pubmedqa", "two.json"), `[{"question": "Does exercise help?", "final_decision": "yes"}]`)
	writeFile(t, filepath.Join(root, "covid-xray", "train", "NORMAL", "x1.png"), "x")
	writeFile(t, filepath.Join(root, "covid-xray", "test", "NORMAL", "x1.png"), "x")
	writeFile(t, filepath.Join(root, "skin-lesions", "lesion.png"), "x")
	writeFile(t, filepath.Join(root, "skin-lesions", "lesion.jpg"), "x")

	b := NewBuilder(root)
	require.NoError(t, b.Load(context.Background()))

	counts := map[string]int{}
	for _, r := range b.Records() {
		counts[r.ID]++
	}
	for id, n := range counts {
		assert.Equal(t, 1, n, "duplicate id %s", id)
	}
	assert.Len(t, b.DatasetRecords("diabetes"), 2)
	assert.Len(t, b.DatasetRecords("pubmedqa"), 2)
	assert.Len(t, b.DatasetRecords("covid-xray"), 2)
	assert.Len(t, b.DatasetRecords("skin-lesions"), 2)
	assert.Contains(t, counts, "diabetes_a_0")
	assert.Contains(t, counts, "diabetes_b_0")
}

func TestTruncateSnippetKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", snippetLimit+5)
	got := truncateSnippet(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", snippetLimit)+"...", got)
	assert.Equal(t, "short", truncateSnippet("short"))
}

func TestRowCap(t *testing.T) {
	root := t.TempDir()
	var sb strings.Builder
	sb.WriteString("age,hypertension,heart_disease,work_type,smoking_status,stroke\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&sb, "%d,0,0,Private,never smoked,0\n", 40+i)
	}
	writeFile(t, filepath.Join(root, "stroke", "stroke.csv"), sb.String())

	b := NewBuilder(root, WithMaxRows(10))
	require.NoError(t, b.Load(context.Background()))
	assert.Len(t, b.DatasetRecords("stroke"), 10)
}

func TestTranscriptionRecords(t *testing.T) {
	root := t.TempDir()
	long := strings.Repeat("chest pain ", 40)
	writeFile(t, filepath.Join(root, "medical-transcriptions", "mtsamples.csv"),
		"description,medical_specialty,sample_name,transcription\n"+
			"\"Consult, chest pain\",Cardiology,Chest Pain Consult,\""+long+"\"\n"+
			"empty,Cardiology,Nothing,\n")

	b := NewBuilder(root)
	require.NoError(t, b.Load(context.Background()))
	recs := b.DatasetRecords("medical-transcriptions")
	require.Len(t, recs, 1)
	assert.Equal(t, core.RecordText, recs[0].Type)
	assert.True(t, strings.HasPrefix(recs[0].SearchText, "Medical transcription: chest pain"))
	assert.Len(t, recs[0].Snippet, 203)
	assert.Equal(t, "Cardiology", recs[0].Metadata["medical_specialty"])
}

func TestQARecordsKeyedAndArray(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pubmedqa", "keyed.json"), `{
		"21645374": {"QUESTION": "Do mitochondria play a role in remodelling lace plant leaves?", "CONTEXTS": ["ctx one", "ctx two", "ctx three"], "final_decision": "yes"},
		"16418930": {"QUESTION": "", "final_decision": "no"}
	}`)
	writeFile(t, filepath.Join(root, "pubmedqa", "list.json"), `[
		{"question": "Is aspirin useful after stroke?", "context": "single passage", "final_decision": "maybe"}
	]`)
	writeFile(t, filepath.Join(root, "pubmedqa", "broken.json"), `{not json`)

	b := NewBuilder(root)
	require.NoError(t, b.Load(context.Background()))
	recs := b.DatasetRecords("pubmedqa")
	require.Len(t, recs, 2)

	byID := map[string]core.SearchRecord{}
	for _, r := range recs {
		byID[r.ID] = r
	}
	keyed := byID["pubmedqa_21645374"]
	assert.Equal(t, "Medical Question: Do mitochondria play a role in remodelling lace plant leaves? Answer: yes Context: ctx one ctx two", keyed.SearchText)
	assert.Equal(t, "21645374", keyed.Metadata["pubmed_id"])

	listed := byID["pubmedqa_list_0"]
	assert.Contains(t, listed.SearchText, "Context: single passage")
	assert.Equal(t, "maybe", listed.Metadata["answer"])
}

func TestImageRecords(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "brain-scans", "glioma_tumor", "image(1).jpg"), "not really a jpeg")
	writeFile(t, filepath.Join(root, "covid-xray", "COVID-0001.png"), "x")
	writeFile(t, filepath.Join(root, "covid-xray", "readme.txt"), "ignored")
	writeFile(t, filepath.Join(root, "ecg-heartbeat", "abnormal_beat_7.png"), "x")

	b := NewBuilder(root)
	require.NoError(t, b.Load(context.Background()))

	brain := b.DatasetRecords("brain-scans")
	require.Len(t, brain, 1)
	assert.Equal(t, "brain-scans_glioma_tumor/image(1).jpg", brain[0].ID)
	assert.Equal(t, core.RecordImage, brain[0].Type)
	assert.Contains(t, brain[0].SearchText, "Brain MRI scan showing glioma tumor")
	assert.Equal(t, "jpg", brain[0].Metadata["format"])
	assert.EqualValues(t, len("not really a jpeg"), brain[0].Metadata["size"])

	covid := b.DatasetRecords("covid-xray")
	require.Len(t, covid, 1)
	assert.Equal(t, "COVID", covid[0].Metadata["category"])
	assert.Contains(t, covid[0].SearchText, "Chest X-ray image classified as COVID")

	ecg := b.DatasetRecords("ecg-heartbeat")
	require.Len(t, ecg, 1)
	assert.Equal(t, "abnormal", ecg[0].Metadata["category"])
}

func TestImageCategory(t *testing.T) {
	cats := []string{"NORMAL", "PNEUMONIA", "COVID"}
	root := "/data/covid-xray"
	assert.Equal(t, "PNEUMONIA", imageCategory(root, "/data/covid-xray/train/pneumonia/p1.png", cats))
	assert.Equal(t, "other", imageCategory(root, "/data/covid-xray/other/x.png", cats))
	assert.Equal(t, "NORMAL", imageCategory(root, "/data/covid-xray/normal_12.png", cats))
	assert.Equal(t, "no_tumor", imageCategory(root, "/data/covid-xray/no_tumor_3.png", nil))
	assert.Equal(t, "unknown", imageCategory(root, "/data/covid-xray/scan.png", nil))
}

func TestConcurrentLoadScansOnce(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "covid-xray", "NORMAL", "n1.png"), "x")

	started := make(chan struct{})
	release := make(chan struct{})
	b := NewBuilder(root)
	var once sync.Once
	b.beforeScan = func() {
		once.Do(func() { close(started) })
		<-release
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- b.Load(context.Background()) }()
	<-started

	secondDone := make(chan error, 1)
	go func() { secondDone <- b.Load(context.Background()) }()

	select {
	case <-secondDone:
		t.Fatal("second Load returned before the in-flight scan finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)
	assert.EqualValues(t, 1, b.ScanCount())
	assert.Len(t, b.Records(), 1)

	require.NoError(t, b.Load(context.Background()))
	assert.EqualValues(t, 1, b.ScanCount())
}

func TestReloadPicksUpNewFiles(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(root)
	require.NoError(t, b.Load(context.Background()))
	assert.Empty(t, b.Records())

	writeFile(t, filepath.Join(root, "covid-xray", "PNEUMONIA", "p1.jpg"), "x")
	require.NoError(t, b.Reload(context.Background()))
	assert.EqualValues(t, 2, b.ScanCount())
	assert.Len(t, b.Records(), 1)
}

type recordingMirror struct {
	mu   sync.Mutex
	got  []core.SearchRecord
	fail error
}

func (m *recordingMirror) Replace(_ context.Context, records []core.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = records
	return m.fail
}

func TestMirrorReceivesRecordsAndFailureIsNotFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "covid-xray", "COVID", "c1.png"), "x")

	m := &recordingMirror{fail: fmt.Errorf("mongo down")}
	b := NewBuilder(root, WithMirror(m))
	require.NoError(t, b.Load(context.Background()))
	assert.Len(t, m.got, 1)
	assert.Len(t, b.Records(), 1)
}

func TestStats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "covid-xray", "COVID", "c1.png"), "x")
	writeFile(t, filepath.Join(root, "covid-xray", "NORMAL", "n1.png"), "x")
	writeFile(t, filepath.Join(root, "diabetes", "d.csv"), "Glucose,Outcome\n120,1\n")

	b := NewBuilder(root)
	st := b.Stats()
	assert.False(t, st.Loaded)

	require.NoError(t, b.Load(context.Background()))
	st = b.Stats()
	assert.True(t, st.Loaded)
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, 2, st.ByType["image"])
	assert.Equal(t, 1, st.ByType["tabular"])
	assert.Equal(t, 2, st.Datasets["covid-xray"].Total)
	assert.Equal(t, 0, st.Datasets["stroke"].Total)
}
