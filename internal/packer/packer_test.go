package packer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"testing"
	"time"

	"respack/internal/errors"
	"respack/internal/imaging"
	"respack/internal/vpath"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	inputRoot  = vpath.FromCanonical("/gfx/in/")
	outputRoot = vpath.FromCanonical("/data/out/")
)

// stubDecoder serves canned layers by path so tests do not need real PSDs.
type stubDecoder map[string][]imaging.Layer

func (s stubDecoder) DecodeLayers(_ afero.Fs, name string) ([]imaging.Layer, error) {
	layers, ok := s[name]
	if !ok {
		return nil, errors.Decode(name, fmt.Errorf("unreadable"))
	}
	return layers, nil
}

func layer(x, y, w, h int) imaging.Layer {
	r := image.Rect(x, y, x+w, y+h)
	img := image.NewNRGBA(r)
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			img.SetNRGBA(px, py, color.NRGBA{R: 200, A: 255})
		}
	}
	return imaging.Layer{Image: img, Page: imaging.GeometryFromRect(r)}
}

// recorder is an Observer that keeps everything it sees.
type recorder struct {
	NopObserver
	started  []bool
	states   []string
	dirs     []DirResult
	finished int
}

func (r *recorder) OnStart(_, _ vpath.Path, full bool) { r.started = append(r.started, full) }
func (r *recorder) OnState(dir vpath.Path, s State) {
	r.states = append(r.states, dir.String()+":"+s.String())
}
func (r *recorder) OnDirDone(res DirResult) { r.dirs = append(r.dirs, res) }
func (r *recorder) OnFinish(*Report)        { r.finished++ }

func write(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
}

func touch(t *testing.T, fs afero.Fs, name string, d time.Duration) {
	t.Helper()
	later := time.Now().Add(d)
	require.NoError(t, fs.Chtimes(name, later, later))
}

// fixture builds:
//
//	/gfx/in/hero.psd           3 layers, 64x64
//	/gfx/in/ui/coin.pngdef     4 frames of a 40x10 strip
//	/gfx/in/.svn/ghost.psd     never visited
func fixture(t *testing.T) (afero.Fs, stubDecoder) {
	t.Helper()
	fs := afero.NewMemMapFs()
	write(t, fs, "/gfx/in/hero.psd", "hero layers")
	write(t, fs, "/gfx/in/ui/coin.pngdef", "4")
	require.NoError(t, imaging.WritePNG(fs, "/gfx/in/ui/coin.png", image.NewNRGBA(image.Rect(0, 0, 40, 10))))
	write(t, fs, "/gfx/in/.svn/ghost.psd", "ghost")

	decoder := stubDecoder{
		"/gfx/in/hero.psd": {layer(0, 0, 64, 64), layer(2, 3, 64, 64), layer(5, 6, 64, 64)},
	}
	return fs, decoder
}

func snapshotTree(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	require.NoError(t, afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			data, err := afero.ReadFile(fs, path)
			if err != nil {
				return err
			}
			files[path] = string(data)
		}
		return nil
	}))
	return files
}

func newPacker(fs afero.Fs, decoder stubDecoder, obs Observer, opts Options) *ResourcePacker {
	p := New(fs, nil, WithDecoder(decoder), WithObserver(obs), WithOptions(opts))
	p.Init(inputRoot, outputRoot)
	return p
}

func TestInit(t *testing.T) {
	p := New(afero.NewMemMapFs(), nil)
	p.Init(inputRoot, outputRoot)
	assert.Equal(t, "/gfx/", p.ExcludeDir().String())
	assert.Equal(t, "/gfx/$process/in/", p.processDirFor(inputRoot).String())
	assert.Equal(t, "/gfx/$process/in/ui/", p.processDirFor(vpath.FromCanonical("/gfx/in/ui/")).String())

	assert.Panics(t, func() { p.Init(vpath.FromCanonical("/gfx/in"), outputRoot) })
	assert.Panics(t, func() { p.Init(inputRoot, vpath.FromCanonical("/data/out")) })
	assert.Panics(t, func() { New(afero.NewMemMapFs(), nil).PackResources(context.Background()) })
}

func TestFirstRunRepacksEverything(t *testing.T) {
	fs, decoder := fixture(t)
	obs := &recorder{}
	p := newPacker(fs, decoder, obs, Options{})

	report, err := p.PackResources(context.Background())
	require.NoError(t, err)

	assert.True(t, report.FullRepack)
	assert.Equal(t, []bool{true}, obs.started)
	assert.Equal(t, 1, obs.finished)
	require.Len(t, report.Dirs, 2)
	assert.Equal(t, "/gfx/in/", report.Dirs[0].Input)
	assert.Equal(t, "/gfx/in/ui/", report.Dirs[1].Input)
	assert.Equal(t, 2, report.Repacked())
	assert.Equal(t, 1, report.Dirs[0].Definitions)
	assert.Equal(t, StateDone, p.State())

	for _, name := range []string{
		"/data/out/texture0.png",
		"/data/out/texture.json",
		"/data/out/hero.txt",
		"/data/out/ui/texture0.png",
		"/data/out/ui/coin.txt",
		"/gfx/$process/in/hero0.png",
		"/gfx/$process/in/hero1.png",
		"/gfx/$process/in/filelist.yaml",
		"/gfx/$process/in/dir.md5",
		"/gfx/$process/in/ui/coin3.png",
		"/gfx/$process/in.md5",
	} {
		exists, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}

	exists, _ := afero.Exists(fs, "/data/out/.svn")
	assert.False(t, exists, "dot directories are never walked")

	desc, err := afero.ReadFile(fs, "/data/out/hero.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(desc)), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "64 64", lines[2])
	assert.Equal(t, "2", lines[3])
	assert.True(t, strings.HasSuffix(lines[4], " 65 65 2 3 0"), lines[4])
	assert.True(t, strings.HasSuffix(lines[5], " 65 65 5 6 0"), lines[5])
}

func TestSecondRunIsUnchanged(t *testing.T) {
	for _, guard := range []Guard{GuardInput, GuardOutput} {
		t.Run(string(guard), func(t *testing.T) {
			fs, decoder := fixture(t)
			_, err := newPacker(fs, decoder, NopObserver{}, Options{Guard: guard}).PackResources(context.Background())
			require.NoError(t, err)
			before := snapshotTree(t, fs, "/data/out")

			obs := &recorder{}
			report, err := newPacker(fs, decoder, obs, Options{Guard: guard}).PackResources(context.Background())
			require.NoError(t, err)

			assert.False(t, report.FullRepack)
			assert.Zero(t, report.Repacked())
			for _, d := range report.Dirs {
				assert.Equal(t, StatusUnchanged, d.Status, d.Input)
			}
			assert.Equal(t, before, snapshotTree(t, fs, "/data/out"))
			assert.Contains(t, obs.states, "/gfx/in/:unchanged")
		})
	}
}

func TestInputGuardForcesFullRepack(t *testing.T) {
	fs, decoder := fixture(t)
	_, err := newPacker(fs, decoder, NopObserver{}, Options{}).PackResources(context.Background())
	require.NoError(t, err)

	write(t, fs, "/gfx/in/ui/coin.pngdef", "2")
	touch(t, fs, "/gfx/in/ui/coin.pngdef", time.Hour)

	report, err := newPacker(fs, decoder, NopObserver{}, Options{}).PackResources(context.Background())
	require.NoError(t, err)
	assert.True(t, report.FullRepack)
	assert.Equal(t, 2, report.Repacked())

	desc, err := afero.ReadFile(fs, "/data/out/ui/coin.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(desc), "1\ntexture0\n20 10\n2\n"), string(desc))
}

func TestOutputGuardRepacksOnlyChangedDirectory(t *testing.T) {
	fs, decoder := fixture(t)
	opts := Options{Guard: GuardOutput}
	_, err := newPacker(fs, decoder, NopObserver{}, opts).PackResources(context.Background())
	require.NoError(t, err)
	rootBefore, err := afero.ReadFile(fs, "/data/out/hero.txt")
	require.NoError(t, err)

	write(t, fs, "/gfx/in/ui/coin.pngdef", "2")
	touch(t, fs, "/gfx/in/ui/coin.pngdef", time.Hour)

	report, err := newPacker(fs, decoder, NopObserver{}, opts).PackResources(context.Background())
	require.NoError(t, err)
	assert.False(t, report.FullRepack)
	require.Len(t, report.Dirs, 2)
	assert.Equal(t, StatusUnchanged, report.Dirs[0].Status)
	assert.Equal(t, StatusRepacked, report.Dirs[1].Status)

	rootAfter, err := afero.ReadFile(fs, "/data/out/hero.txt")
	require.NoError(t, err)
	assert.Equal(t, rootBefore, rootAfter)
}

func TestOutputGuardDetectsTamperedOutput(t *testing.T) {
	fs, decoder := fixture(t)
	opts := Options{Guard: GuardOutput}
	_, err := newPacker(fs, decoder, NopObserver{}, opts).PackResources(context.Background())
	require.NoError(t, err)

	write(t, fs, "/data/out/stray.txt", "not ours")

	report, err := newPacker(fs, decoder, NopObserver{}, opts).PackResources(context.Background())
	require.NoError(t, err)
	assert.True(t, report.FullRepack)
	exists, _ := afero.Exists(fs, "/data/out/stray.txt")
	assert.False(t, exists)
}

func TestTouchWithoutEditStaysUnchanged(t *testing.T) {
	fs, decoder := fixture(t)
	opts := Options{Guard: GuardOutput}
	_, err := newPacker(fs, decoder, NopObserver{}, opts).PackResources(context.Background())
	require.NoError(t, err)

	touch(t, fs, "/gfx/in/hero.psd", time.Hour)

	report, err := newPacker(fs, decoder, NopObserver{}, opts).PackResources(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Repacked(), "date changed but digest did not")
}

func TestDecodeFailureIsContainedToDirectory(t *testing.T) {
	fs, decoder := fixture(t)
	write(t, fs, "/gfx/in/broken.psd", "garbage")

	report, err := newPacker(fs, decoder, NopObserver{}, Options{}).PackResources(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Dirs, 2)
	assert.Equal(t, StatusFailed, report.Dirs[0].Status)
	assert.NotEmpty(t, report.Dirs[0].Error)
	assert.Equal(t, StatusRepacked, report.Dirs[1].Status, "children are still walked")

	exists, _ := afero.Exists(fs, "/data/out/texture0.png")
	assert.False(t, exists, "failed directory is not packed")
}

func TestSingleLayerSource(t *testing.T) {
	fs, decoder := fixture(t)
	decoder["/gfx/in/hero.psd"] = []imaging.Layer{layer(0, 0, 32, 32)}

	report, err := newPacker(fs, decoder, NopObserver{}, Options{}).PackResources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusRepacked, report.Dirs[0].Status)

	desc, err := afero.ReadFile(fs, "/data/out/hero.txt")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(desc)), "\n")
	assert.Equal(t, "1", lines[3])
	assert.Equal(t, "0 0 33 33 0 0 0", lines[4])
}

func TestFlagsFile(t *testing.T) {
	fs, decoder := fixture(t)
	write(t, fs, "/gfx/in/flags.txt", "--split --add4pixel bogus")

	obs := &recorder{}
	report, err := newPacker(fs, decoder, obs, Options{}).PackResources(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "--split --add4pixel bogus", report.Dirs[0].Flags)
	assert.Empty(t, report.Dirs[1].Flags, "flags do not leak into children")

	for _, name := range []string{"/data/out/hero0.png", "/data/out/hero.json"} {
		exists, _ := afero.Exists(fs, name)
		assert.True(t, exists, name)
	}

	desc, err := afero.ReadFile(fs, "/data/out/hero.txt")
	require.NoError(t, err)
	assert.Contains(t, string(desc), " 68 68 2 3 0")

	coin, err := afero.ReadFile(fs, "/data/out/ui/coin.txt")
	require.NoError(t, err)
	assert.Contains(t, string(coin), " 11 11 0 0 0", "child uses default padding")
}

func TestLightmaps(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, imaging.WritePNG(fs, "/gfx/in/lm0.png", image.NewNRGBA(image.Rect(0, 0, 100, 50))))
	require.NoError(t, imaging.WritePNG(fs, "/gfx/in/lm1.png", image.NewNRGBA(image.Rect(0, 0, 30, 30))))

	report, err := newPacker(fs, stubDecoder{}, NopObserver{}, Options{Lightmaps: true}).PackResources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dirs[0].Definitions)

	page, err := imaging.LoadImage(fs, "/data/out/texture0.png")
	require.NoError(t, err)
	assert.Equal(t, page.Bounds().Dx(), page.Bounds().Dy())
}

func TestClearProcessDir(t *testing.T) {
	fs, decoder := fixture(t)
	write(t, fs, "/gfx/$process/in/stale.png", "old frame")

	_, err := newPacker(fs, decoder, NopObserver{}, Options{ClearProcessDir: true}).PackResources(context.Background())
	require.NoError(t, err)

	exists, _ := afero.Exists(fs, "/gfx/$process/in/stale.png")
	assert.False(t, exists)
}

func TestStateSequence(t *testing.T) {
	fs, decoder := fixture(t)
	obs := &recorder{}
	_, err := newPacker(fs, decoder, obs, Options{}).PackResources(context.Background())
	require.NoError(t, err)

	var root []string
	for _, s := range obs.states {
		if strings.HasPrefix(s, "/gfx/in/:") {
			root = append(root, strings.TrimPrefix(s, "/gfx/in/:"))
		}
	}
	assert.Equal(t, []string{"idle", "scanning_flags", "detecting_change", "repacking", "recursing_children", "done"}, root)
}

func TestCancellation(t *testing.T) {
	fs, decoder := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs := &recorder{}
	report, err := newPacker(fs, decoder, obs, Options{}).PackResources(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Canceled)
	assert.Equal(t, 1, obs.finished)
}

func TestSkipDir(t *testing.T) {
	assert.True(t, skipDir("$process"))
	assert.True(t, skipDir(".svn"))
	assert.True(t, skipDir(".git"))
	assert.False(t, skipDir("ui"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "repacking", StateRepacking.String())
	assert.Equal(t, "unknown", State(99).String())
}
