package run

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/gavdener/internal/config"
	"github.com/John-Robertt/gavdener/internal/domain"
	"github.com/John-Robertt/gavdener/internal/marker"
	"github.com/John-Robertt/gavdener/internal/provider"
	"github.com/John-Robertt/gavdener/internal/provider/javbus"
	"github.com/John-Robertt/gavdener/internal/provider/sites"
)

const searchABP = `<html><body><div id="waterfall">
  <div class="item"><a class="movie-box" href="/ABP-123">
    <div class="photo-info"><span>t<br><date>ABP-123</date> / <date>2014-05-01</date></span></div>
  </a></div>
</div></body></html>`

const detailABP = `<html><body><div class="container">
  <h3>ABP-123 夏の日</h3>
  <div class="col-md-3 info">
    <p><span class="header">導演:</span> <a href="/director/1">田中</a></p>
    <p><span class="genre"><label><a href="/genre/1">劇情</a></label></span></p>
    <p class="star-show"><span class="header">演員</span>:</p>
    <p>
      <span class="genre"><a href="/star/a">鈴木</a></span>
      <span class="genre"><a href="/star/b">佐藤</a></span>
    </p>
  </div>
</div></body></html>`

type fakeSite struct {
	mu     sync.Mutex
	routes map[string]string
	status map[string]int
	hits   int
}

func (s *fakeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
	if code, ok := s.status[r.URL.Path]; ok {
		http.Error(w, "boom", code)
		return
	}
	body, ok := s.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func newSite(t *testing.T, s *fakeSite) []*provider.Provider {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	ps, err := sites.Registry().Build([]string{javbus.Name}, provider.Options{
		Client:   srv.Client(),
		Timeout:  2 * time.Second,
		Retry:    0,
		BaseURLs: map[string]string{javbus.Name: srv.URL},
	})
	if err != nil {
		t.Fatalf("构造 provider 失败：%v", err)
	}
	return ps
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
}

func testConfig(root string) config.Config {
	return config.Config{
		MediaDir:   filepath.Join(root, "media"),
		TargetDir:  filepath.Join(root, "library"),
		Sites:      []string{javbus.Name},
		TargetExts: []string{".mp4"},
		IgnoreName: marker.DefaultIgnoreName,
		InfoName:   marker.DefaultInfoName,
	}
}

type recordObserver struct {
	started bool
	phases  []string
	items   []domain.ItemResult
	aborted error
}

func (o *recordObserver) OnStart(config.Config) { o.started = true }
func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.phases = append(o.phases, name)
}
func (o *recordObserver) OnItemDone(_, _ int, res domain.ItemResult, _ time.Duration) {
	o.items = append(o.items, res)
}
func (o *recordObserver) OnAbort(err error) { o.aborted = err }

func TestExecute_PlacesResolvedAndMarksUnresolved(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.LinkActors = true
	src := filepath.Join(cfg.MediaDir, "a", "ABP-123.mp4")
	junk := filepath.Join(cfg.MediaDir, "b", "holiday.mp4")
	writeFile(t, src)
	writeFile(t, junk)
	writeFile(t, filepath.Join(cfg.MediaDir, "a", "cover.jpg"))

	ps := newSite(t, &fakeSite{routes: map[string]string{
		"/search/ABP-123": searchABP,
		"/ABP-123":        detailABP,
	}})
	obs := &recordObserver{}

	rr, err := Execute(context.Background(), cfg, ps, nil, obs)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Aborted {
		t.Fatalf("不应中止：%+v", rr)
	}
	if rr.Summary.Placed != 1 || rr.Summary.Unresolved != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}

	want := filepath.Join(cfg.TargetDir, "鈴木", "ABP-123", "ABP-123.mp4")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("期望文件被移动到 %s：%v", want, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("源文件应已移走，Stat err=%v", err)
	}
	link := filepath.Join(cfg.TargetDir, "佐藤", "ABP-123", "ABP-123.mp4")
	if _, err := os.Stat(link); err != nil {
		t.Fatalf("期望第二位演员目录有硬链接：%v", err)
	}

	info, err := marker.ReadInfo(filepath.Dir(want), "")
	if err != nil {
		t.Fatalf("读取 info 标记失败：%v", err)
	}
	if info.Title != "夏の日" || info.Director != "田中" {
		t.Fatalf("info 标记内容不符合预期：%+v", info)
	}

	if !marker.HasIgnore(filepath.Dir(junk), "") {
		t.Fatalf("未解析文件所在目录应写入 ignore 标记")
	}
	if _, err := os.Stat(junk); err != nil {
		t.Fatalf("未解析文件不应被移动：%v", err)
	}

	// 报告按 Src 排序：a/ 在 b/ 之前。
	if len(rr.Items) != 2 {
		t.Fatalf("期望 2 个条目，实际 %d", len(rr.Items))
	}
	first := rr.Items[0]
	if first.Status != domain.StatusPlaced || first.Codename != "ABP-123" || first.Provider != javbus.Name || first.Target != want {
		t.Fatalf("第一条不符合预期：%+v", first)
	}
	if len(first.Links) != 1 || first.Links[0] != link {
		t.Fatalf("期望记录新建的链接，实际 %v", first.Links)
	}
	second := rr.Items[1]
	if second.Status != domain.StatusUnresolved || second.Query != "holiday" || second.Provider != "" {
		t.Fatalf("第二条不符合预期：%+v", second)
	}

	if !obs.started || len(obs.phases) != 1 || obs.phases[0] != "scan" || len(obs.items) != 2 || obs.aborted != nil {
		t.Fatalf("observer 事件不符合预期：%+v", obs)
	}

	// 再跑一次：ignore 目录被跳过，目标目录不在媒体目录下，不会再有条目。
	rr2, err := Execute(context.Background(), cfg, ps, nil, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(rr2.Items) != 0 {
		t.Fatalf("第二次运行不应再处理任何文件：%+v", rr2.Items)
	}
}

func TestExecute_ProviderFailureAbortsBatch(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	writeFile(t, filepath.Join(cfg.MediaDir, "a", "ABP-123.mp4"))
	writeFile(t, filepath.Join(cfg.MediaDir, "b", "BAD-001.mp4"))
	writeFile(t, filepath.Join(cfg.MediaDir, "c", "ABP-124.mp4"))

	ps := newSite(t, &fakeSite{
		routes: map[string]string{
			"/search/ABP-123": searchABP,
			"/ABP-123":        detailABP,
		},
		status: map[string]int{"/search/BAD-001": http.StatusBadGateway},
	})
	obs := &recordObserver{}

	rr, err := Execute(context.Background(), cfg, ps, nil, obs)
	if err == nil {
		t.Fatalf("期望 provider 错误中止整批")
	}
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Provider != javbus.Name {
		t.Fatalf("期望 *provider.Error，实际 %T %v", err, err)
	}
	if !rr.Aborted || rr.AbortMsg == "" || obs.aborted == nil {
		t.Fatalf("报告应标记中止：%+v", rr)
	}
	if len(rr.Items) != 2 {
		t.Fatalf("中止后不应继续处理后续文件，实际 %d 条", len(rr.Items))
	}
	if rr.Items[1].Status != domain.StatusFailed || rr.Items[1].ErrorCode != domain.ErrCodeResolveFailed {
		t.Fatalf("失败条目不符合预期：%+v", rr.Items[1])
	}
	if _, err := os.Stat(filepath.Join(cfg.MediaDir, "c", "ABP-124.mp4")); err != nil {
		t.Fatalf("未处理的文件应保持原样：%v", err)
	}
	if marker.HasIgnore(filepath.Join(cfg.MediaDir, "b"), "") {
		t.Fatalf("硬失败不应写 ignore 标记")
	}
}

func TestExecute_DebugWritesMarkersOnly(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Debug = true
	cfg.LinkActors = true
	src := filepath.Join(cfg.MediaDir, "ABP-123.mp4")
	junk := filepath.Join(cfg.MediaDir, "x", "holiday.mp4")
	writeFile(t, src)
	writeFile(t, junk)

	ps := newSite(t, &fakeSite{routes: map[string]string{
		"/search/ABP-123": searchABP,
		"/ABP-123":        detailABP,
	}})

	rr, err := Execute(context.Background(), cfg, ps, nil, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("调试模式不应移动文件：%v", err)
	}
	dir := filepath.Join(cfg.TargetDir, "鈴木", "ABP-123")
	if _, err := marker.ReadInfo(dir, ""); err != nil {
		t.Fatalf("调试模式仍应写 info 标记：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ABP-123.mp4")); !os.IsNotExist(err) {
		t.Fatalf("调试模式不应出现目标文件，Stat err=%v", err)
	}
	if marker.HasIgnore(filepath.Dir(junk), "") {
		t.Fatalf("调试模式不应写 ignore 标记")
	}
	if rr.Summary.Placed != 1 || rr.Items[0].Status != domain.StatusDryRun {
		t.Fatalf("期望 dry_run 条目：%+v", rr.Items)
	}
}

func TestExecute_ReusesInfoSidecar(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	src := filepath.Join(cfg.MediaDir, "old", "abp123.mp4")
	writeFile(t, src)
	if err := marker.WriteInfo(filepath.Dir(src), "", domain.MovieInfo{
		Codename: "ABP-123",
		Title:    "夏の日",
		Actors:   []string{"鈴木"},
	}); err != nil {
		t.Fatalf("写入 info 标记失败：%v", err)
	}

	site := &fakeSite{}
	ps := newSite(t, site)

	rr, err := Execute(context.Background(), cfg, ps, nil, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if site.hits != 0 {
		t.Fatalf("番号与标记一致时不应联网，实际请求 %d 次", site.hits)
	}
	if len(rr.Items) != 1 || rr.Items[0].Provider != ProviderSidecar || rr.Items[0].Status != domain.StatusPlaced {
		t.Fatalf("条目不符合预期：%+v", rr.Items)
	}
	if !sameCode(rr.Items[0].Query, "ABP-123") || rr.Items[0].Codename != "ABP-123" {
		t.Fatalf("query/codename 不符合预期：%+v", rr.Items[0])
	}
	if _, err := os.Stat(filepath.Join(cfg.TargetDir, "鈴木", "ABP-123", "abp123.mp4")); err != nil {
		t.Fatalf("期望按标记整理：%v", err)
	}
}

func TestExecute_SidecarOnlyAppliesToMatchingCode(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	dir := filepath.Join(cfg.MediaDir, "old")
	writeFile(t, filepath.Join(dir, "ABP-123.mp4"))
	writeFile(t, filepath.Join(dir, "SNIS-919.mp4"))
	if err := marker.WriteInfo(dir, "", domain.MovieInfo{
		Codename: "ABP-123",
		Title:    "夏の日",
		Actors:   []string{"鈴木"},
	}); err != nil {
		t.Fatalf("写入 info 标记失败：%v", err)
	}

	site := &fakeSite{}
	ps := newSite(t, site)

	rr, err := Execute(context.Background(), cfg, ps, nil, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(rr.Items) != 2 {
		t.Fatalf("期望 2 个条目，实际 %+v", rr.Items)
	}
	abp, snis := rr.Items[0], rr.Items[1]
	if abp.Provider != ProviderSidecar || abp.Status != domain.StatusPlaced {
		t.Fatalf("ABP-123 应复用标记：%+v", abp)
	}
	if snis.Provider == ProviderSidecar || snis.Codename == "ABP-123" {
		t.Fatalf("SNIS-919 不应沿用 ABP-123 的标记：%+v", snis)
	}
	if !sameCode(snis.Query, "SNIS-919") || snis.Status != domain.StatusUnresolved {
		t.Fatalf("SNIS-919 应按自身番号查询（站点无结果即未解析）：%+v", snis)
	}
	if site.hits == 0 {
		t.Fatalf("SNIS-919 应联网查询")
	}
	if _, err := os.Stat(filepath.Join(cfg.TargetDir, "鈴木", "ABP-123", "SNIS-919.mp4")); !os.IsNotExist(err) {
		t.Fatalf("SNIS-919 不应被移进 ABP-123 目录，Stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "SNIS-919.mp4")); err != nil {
		t.Fatalf("未解析的文件应留在原处：%v", err)
	}
}

func TestExecute_RerunOnPlacedTreeRepairsMarker(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	writeFile(t, filepath.Join(cfg.MediaDir, "ABP-123.mp4"))

	site := &fakeSite{routes: map[string]string{
		"/search/ABP-123": searchABP,
		"/ABP-123":        detailABP,
	}}
	ps := newSite(t, site)

	if _, err := Execute(context.Background(), cfg, ps, nil, nil); err != nil {
		t.Fatalf("首次运行不期望错误：%v", err)
	}
	placedDir := filepath.Join(cfg.TargetDir, "鈴木", "ABP-123")
	if err := os.Remove(filepath.Join(placedDir, marker.DefaultInfoName)); err != nil {
		t.Fatalf("删除 info 标记失败：%v", err)
	}

	for _, media := range []string{cfg.TargetDir, filepath.Join(cfg.TargetDir, "鈴木")} {
		again := cfg
		again.MediaDir = media
		rr, err := Execute(context.Background(), again, ps, nil, nil)
		if err != nil {
			t.Fatalf("media=%s 不期望错误：%v", media, err)
		}
		if len(rr.Items) != 1 || rr.Items[0].Status != domain.StatusAlreadyPlaced {
			t.Fatalf("media=%s 期望 1 个 already_placed 条目，实际 %+v", media, rr.Items)
		}
		if _, err := marker.ReadInfo(placedDir, ""); err != nil {
			t.Fatalf("media=%s 重跑应补齐 info 标记：%v", media, err)
		}
	}
}

func TestExecute_TargetConflictErrorCode(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	writeFile(t, filepath.Join(cfg.MediaDir, "ABP-123.mp4"))
	// 主演员目录的位置被一个普通文件占用。
	writeFile(t, filepath.Join(cfg.TargetDir, "鈴木"))

	ps := newSite(t, &fakeSite{routes: map[string]string{
		"/search/ABP-123": searchABP,
		"/ABP-123":        detailABP,
	}})

	rr, err := Execute(context.Background(), cfg, ps, nil, nil)
	if err != nil {
		t.Fatalf("整理失败不应中止整批：%v", err)
	}
	if len(rr.Items) != 1 || rr.Items[0].Status != domain.StatusFailed || rr.Items[0].ErrorCode != domain.ErrCodeTargetConflict {
		t.Fatalf("期望 target_conflict，实际 %+v", rr.Items)
	}
}

func TestExcludeDirs(t *testing.T) {
	sep := string(filepath.Separator)
	cases := []struct {
		media, target string
		want          int
	}{
		{sep + "m", sep + "m" + sep + "library", 1},
		{sep + "m", sep + "library", 0},
		{sep + "library", sep + "library", 0},
		{sep + "library" + sep + "a", sep + "library", 0},
		{sep + "m", sep + "m2", 0},
	}
	for _, tc := range cases {
		got := excludeDirs(config.Config{MediaDir: tc.media, TargetDir: tc.target})
		if len(got) != tc.want {
			t.Fatalf("media=%s target=%s 期望排除 %d 项，实际 %v", tc.media, tc.target, tc.want, got)
		}
	}
}

func TestSameCode(t *testing.T) {
	if !sameCode("abp_123", "ABP-123") || !sameCode("ABP123", "ABP-123") {
		t.Fatalf("大小写与分隔符不同的同一番号应视为一致")
	}
	if sameCode("ABP-124", "ABP-123") || sameCode("", "") {
		t.Fatalf("不同番号或空串不应视为一致")
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	writeFile(t, filepath.Join(cfg.MediaDir, "ABP-123.mp4"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr, err := Execute(ctx, cfg, nil, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
	if !rr.Aborted || len(rr.Items) != 0 {
		t.Fatalf("取消后不应处理任何文件：%+v", rr)
	}
}

func TestExecute_MissingMediaDir(t *testing.T) {
	cfg := testConfig(t.TempDir())
	rr, err := Execute(context.Background(), cfg, nil, nil, nil)
	if err == nil || !rr.Aborted {
		t.Fatalf("媒体目录不存在时应返回错误并标记中止：err=%v rr=%+v", err, rr)
	}
}

func TestProviders_UnknownSiteFallsBack(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Sites = []string{"javdb", "nosuchsite"}
	ps, err := Providers(cfg, sites.Registry(), nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(ps) != 2 || ps[0].Name() != "javdb" || ps[1].Name() != javbus.Name {
		t.Fatalf("provider 链不符合预期：%d", len(ps))
	}
}
