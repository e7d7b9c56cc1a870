package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"realtor_scraper/config"
	"realtor_scraper/models"
	"realtor_scraper/storage"
)

type fakeRecorder struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*models.ScrapeRun
	logs     []string
	failures []models.ExtractionFailure
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{runs: make(map[uuid.UUID]*models.ScrapeRun)}
}

func (r *fakeRecorder) CreateRun(run *models.ScrapeRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *fakeRecorder) UpdateRun(run *models.ScrapeRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *fakeRecorder) Log(runID *uuid.UUID, level models.LogLevel, message, city string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, message)
	return nil
}

func (r *fakeRecorder) RecordFailure(runID uuid.UUID, failure models.ExtractionFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
	return nil
}

func (r *fakeRecorder) runsOfKind(kind models.RunKind) []*models.ScrapeRun {
	var out []*models.ScrapeRun
	for _, run := range r.runs {
		if run.Kind == kind {
			out = append(out, run)
		}
	}
	return out
}

type fakeUploader struct {
	files []string
	err   error
}

func (u *fakeUploader) UploadExport(ctx context.Context, filePath string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.files = append(u.files, filePath)
	return "https://bucket.example/exports/" + filepath.Base(filePath), nil
}

type orchestratorFixture struct {
	orch     *Orchestrator
	page     *fakePage
	recorder *fakeRecorder
	uploader *fakeUploader
	dir      string
}

func newOrchestratorFixture(t *testing.T, partition bool) *orchestratorFixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Scraper: testScraperConfig(),
		Export:  config.ExportConfig{OutputDir: dir, Prefix: "realtor_", Partition: partition},
	}
	site := testSite()

	page := newFakePage()
	page.serve(site.BuildSearchURL(site.Regions[0], 1), loadFixture(t, "results_page.html"))
	page.navErrs[site.BuildSearchURL(site.Regions[1], 1)] = errNavigation
	page.serve("https://www.realtor.ca/real-estate/29279012/123-main-st-toronto", loadFixture(t, "listing_detail.html"))
	page.serve("https://www.realtor.ca/real-estate/29279013/88-park-lawn-rd-toronto", loadFixture(t, "listing_missing_broker.html"))

	orch := NewOrchestrator(cfg, site, page, &scriptedPrompter{}, NewInstantPacer(1))
	orch.now = func() time.Time { return time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC) }

	recorder := newFakeRecorder()
	uploader := &fakeUploader{}
	orch.SetRecorder(recorder)
	orch.SetUploader(uploader)

	return &orchestratorFixture{orch: orch, page: page, recorder: recorder, uploader: uploader, dir: dir}
}

func TestHarvestAll_ContinuesPastFailingCity(t *testing.T) {
	fx := newOrchestratorFixture(t, false)

	err := fx.orch.HarvestAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Mississauga") {
		t.Fatalf("expected an error naming Mississauga, got %v", err)
	}

	links, err := storage.ReadCheckpointLinks(storage.CheckpointPath(fx.dir, "Toronto"))
	if err != nil {
		t.Fatalf("Toronto checkpoint missing: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 Toronto links, got %v", links)
	}
	if _, err := os.Stat(storage.CheckpointPath(fx.dir, "Mississauga")); !os.IsNotExist(err) {
		t.Fatalf("expected no Mississauga checkpoint, stat err %v", err)
	}

	runs := fx.recorder.runsOfKind(models.RunKindHarvest)
	if len(runs) != 2 {
		t.Fatalf("expected 2 harvest runs, got %d", len(runs))
	}
	statuses := map[string]models.RunStatus{}
	for _, run := range runs {
		statuses[run.City] = run.Status
	}
	if statuses["Toronto"] != models.RunStatusCompleted || statuses["Mississauga"] != models.RunStatusFailed {
		t.Fatalf("unexpected run statuses %v", statuses)
	}
}

func TestScrapeCity_ExportsPartitionsAndUploads(t *testing.T) {
	fx := newOrchestratorFixture(t, true)
	ctx := context.Background()

	if _, err := fx.orch.HarvestCity(ctx, "toronto"); err != nil {
		t.Fatalf("harvest failed: %v", err)
	}

	res, err := fx.orch.ScrapeCity(ctx, "toronto")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}

	if res.Batch.Processed != 2 || len(res.Batch.Records) != 1 || len(res.Batch.Failures) != 1 {
		t.Fatalf("unexpected batch result %+v", res.Batch)
	}
	if want := filepath.Join(fx.dir, "realtor_1016_Toronto.xlsx"); res.Spreadsheet != want {
		t.Fatalf("expected spreadsheet %s, got %s", want, res.Spreadsheet)
	}

	header, rows, err := storage.ReadSpreadsheet(res.Spreadsheet)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if strings.Join(header, ",") != strings.Join(models.Columns, ",") {
		t.Fatalf("unexpected header %v", header)
	}
	if len(rows) != 1 || rows[0][0] != "123 MAIN ST" || rows[0][3] != "M5V 2T6" {
		t.Fatalf("unexpected rows %v", rows)
	}

	if res.Partitioned != storage.PartitionPath(res.Spreadsheet) {
		t.Fatalf("expected partitioned export, got %q", res.Partitioned)
	}
	if len(fx.uploader.files) != 2 || len(res.UploadedURLs) != 2 {
		t.Fatalf("expected both files uploaded, got %v", fx.uploader.files)
	}

	if len(fx.recorder.failures) != 1 || fx.recorder.failures[0].Kind != models.FailureMissingElement {
		t.Fatalf("expected the missing broker failure to be recorded, got %+v", fx.recorder.failures)
	}
	extract := fx.recorder.runsOfKind(models.RunKindExtract)
	if len(extract) != 1 || extract[0].RecordsExtracted != 1 || extract[0].ErrorsCount != 1 {
		t.Fatalf("unexpected extract run %+v", extract)
	}
}

func TestScrapeCity_NoPostalGroupsIsNotFatal(t *testing.T) {
	fx := newOrchestratorFixture(t, true)
	ctx := context.Background()

	// Only the Mississauga listing (L5B) will be scraped.
	path := storage.CheckpointPath(fx.dir, "Toronto")
	cp := models.LinkCheckpoint{City: "Toronto", Pages: []models.PageLinks{{
		Label: "Page 1",
		Links: []string{"https://www.realtor.ca/real-estate/5/queen"},
	}}}
	if err := storage.WriteCheckpoint(path, cp); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}
	fx.page.serve("https://www.realtor.ca/real-estate/5/queen", strings.Replace(
		loadFixture(t, "listing_missing_broker.html"),
		`<span class="realtorCardName">Sam Lee</span>`,
		`<span class="realtorCardName">Sam Lee</span><div class="officeCardName">Re/Max</div>`, 1))

	res, err := fx.orch.ScrapeCity(ctx, "Toronto")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if res.Partitioned != "" {
		t.Fatalf("expected no partitioned file, got %s", res.Partitioned)
	}
	if len(fx.uploader.files) != 1 {
		t.Fatalf("expected only the main export uploaded, got %v", fx.uploader.files)
	}
}

func TestScrapeCity_UploadFailure(t *testing.T) {
	fx := newOrchestratorFixture(t, false)
	fx.uploader.err = errors.New("access denied")
	ctx := context.Background()

	if _, err := fx.orch.HarvestCity(ctx, "Toronto"); err != nil {
		t.Fatalf("harvest failed: %v", err)
	}
	res, err := fx.orch.ScrapeCity(ctx, "Toronto")
	if err == nil {
		t.Fatalf("expected upload error")
	}
	if _, statErr := os.Stat(res.Spreadsheet); statErr != nil {
		t.Fatalf("export should still be on disk: %v", statErr)
	}
}

func TestScrapeCity_MissingCheckpoint(t *testing.T) {
	fx := newOrchestratorFixture(t, false)
	if _, err := fx.orch.ScrapeCity(context.Background(), "Toronto"); err == nil {
		t.Fatalf("expected an error without a checkpoint")
	}
	runs := fx.recorder.runsOfKind(models.RunKindExtract)
	if len(runs) != 1 || runs[0].Status != models.RunStatusFailed {
		t.Fatalf("expected a failed extract run, got %+v", runs)
	}
}

func TestHarvestCity_KeepsPagesBeforeFailure(t *testing.T) {
	fx := newOrchestratorFixture(t, false)
	site := testSite()
	fx.page.navErrs[site.BuildSearchURL(site.Regions[0], 2)] = errNavigation

	path, err := fx.orch.HarvestCity(context.Background(), "Toronto")
	if !errors.Is(err, errNavigation) {
		t.Fatalf("expected the navigation error, got %v", err)
	}
	if path != storage.CheckpointPath(fx.dir, "Toronto") {
		t.Fatalf("expected the checkpoint path, got %q", path)
	}

	links, rerr := storage.ReadCheckpointLinks(path)
	if rerr != nil {
		t.Fatalf("partial checkpoint missing: %v", rerr)
	}
	if len(links) != 2 {
		t.Fatalf("expected the 2 links of page 1, got %v", links)
	}

	runs := fx.recorder.runsOfKind(models.RunKindHarvest)
	if len(runs) != 1 || runs[0].Status != models.RunStatusFailed || runs[0].LinksFound != 2 {
		t.Fatalf("expected a failed run with 2 links, got %+v", runs)
	}
}

func TestHarvestCity_UnknownCity(t *testing.T) {
	fx := newOrchestratorFixture(t, false)
	if _, err := fx.orch.HarvestCity(context.Background(), "Atlantis"); err == nil {
		t.Fatalf("expected unknown city error")
	}
}

func TestOrchestrator_RejectsConcurrentRuns(t *testing.T) {
	fx := newOrchestratorFixture(t, false)
	fx.orch.mu.Lock()
	defer fx.orch.mu.Unlock()

	if err := fx.orch.HarvestAll(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress from HarvestAll, got %v", err)
	}
	if _, err := fx.orch.ScrapeCity(context.Background(), "Toronto"); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress from ScrapeCity, got %v", err)
	}
}

func TestPartition_RecordsRun(t *testing.T) {
	fx := newOrchestratorFixture(t, false)
	records := []models.ListingRecord{
		{Address: "1 A ST", City: "TORONTO", State: "ON", PostalCode: "M4C 1A1"},
		{Address: "2 B ST", City: "TORONTO", State: "ON", PostalCode: "M6H 2B2"},
	}
	src, err := storage.WriteSpreadsheet(records, "Toronto", fx.dir, "realtor_", time.Now())
	if err != nil {
		t.Fatalf("write export: %v", err)
	}

	out, err := fx.orch.Partition(context.Background(), src)
	if err != nil {
		t.Fatalf("partition failed: %v", err)
	}
	if out != storage.PartitionPath(src) {
		t.Fatalf("unexpected output %s", out)
	}
	runs := fx.recorder.runsOfKind(models.RunKindPartition)
	if len(runs) != 1 || runs[0].Status != models.RunStatusCompleted || runs[0].OutputPath != out {
		t.Fatalf("unexpected partition run %+v", runs)
	}
}

func TestNoOpRecorderIsDefault(t *testing.T) {
	orch := NewOrchestrator(&config.Config{}, testSite(), newFakePage(), &scriptedPrompter{}, NewInstantPacer(1))
	if orch.recorder != NoOpRecorder {
		t.Fatalf("expected NoOpRecorder by default")
	}
	orch.SetRecorder(nil)
	if orch.recorder != NoOpRecorder {
		t.Fatalf("expected nil recorder to fall back to NoOpRecorder")
	}
}
