package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyankiyoshi/s3git/internal/config"
	"github.com/nyankiyoshi/s3git/internal/git"
	"github.com/nyankiyoshi/s3git/internal/ignore"
	"github.com/nyankiyoshi/s3git/internal/remote"
	"github.com/nyankiyoshi/s3git/internal/testutil"
)

const testRemoteConfig = `
[default]
S3_ACCESS_KEY_ID = id
S3_SECRET_ACCESS_KEY = secret
S3_BUCKET_NAME = site-bucket
S3_UPLOAD_LOCATION = www

[release]
S3_ACCESS_KEY_ID = id
S3_SECRET_ACCESS_KEY = secret
S3_BUCKET_NAME = release-bucket
`

// cliEnv is a repository checked out in the working directory with
// in-memory buckets standing in for S3
type cliEnv struct {
	repo    *testutil.Repo
	stores  map[string]*remote.MemoryStore
	profile *config.Remote
	logs    *bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	env := &cliEnv{
		repo:   testutil.NewRepo(t),
		stores: make(map[string]*remote.MemoryStore),
		logs:   &bytes.Buffer{},
	}
	require.NoError(t, os.WriteFile(filepath.Join(env.repo.Dir, config.DefaultRemoteConfigPath), []byte(testRemoteConfig), 0o600))
	t.Chdir(env.repo.Dir)
	t.Setenv(config.EnvEndpointURL, "")

	origOpen, origOutput := openStore, logOutput
	t.Cleanup(func() {
		openStore = origOpen
		logOutput = origOutput
	})
	openStore = func(_ context.Context, r *config.Remote) (remote.Store, error) {
		env.profile = r
		store, ok := env.stores[r.BucketName]
		if !ok {
			store = remote.NewMemoryStore()
			env.stores[r.BucketName] = store
		}
		return store, nil
	}
	logOutput = env.logs

	return env
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	settingsFile = config.DefaultSettingsPath
	remoteFile = ""
	logLevel = "info"
	logFormat = "text"
	force, wildcard, dryRun = false, false, false

	if args == nil {
		// cobra falls back to os.Args for a nil slice
		args = []string{}
	}
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestRunSync_FirstRunThenUpToDate(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("a.txt", "alpha")
	env.repo.Write("b.txt", "beta")
	env.repo.Write(".s3ignore", `^.*\.s3ignore$`)
	target := env.repo.Commit("initial")

	require.NoError(t, execute(t))

	store := env.stores["site-bucket"]
	require.NotNil(t, store)
	assert.Equal(t, config.DefaultSection, env.profile.Section)
	assert.Equal(t, []string{"www/.s3git-rev", "www/a.txt", "www/b.txt"}, store.Keys())

	ptr, _ := store.Object("www/.s3git-rev")
	assert.Equal(t, target, string(ptr.Data))

	store.ResetRequests()
	require.NoError(t, execute(t), "an up-to-date remote is not an error")
	assert.Empty(t, store.Puts())
	assert.Contains(t, env.logs.String(), "remote repository is up to date")
}

func TestRunSync_ForceReuploads(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("a.txt", "alpha")
	env.repo.Commit("initial")

	require.NoError(t, execute(t))
	store := env.stores["site-bucket"]
	store.ResetRequests()

	require.NoError(t, execute(t, "--force"))
	assert.ElementsMatch(t, []string{"www/a.txt", "www/.s3git-rev"}, store.Puts())

	store.ResetRequests()
	require.NoError(t, execute(t, "-f"))
	assert.Len(t, store.Puts(), 2)
}

func TestRunSync_RefSelectsProfile(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("a.txt", "alpha")
	release := env.repo.Commit("initial")
	env.repo.Branch("release")
	env.repo.Write("a.txt", "alpha v2")
	env.repo.Commit("second")

	require.NoError(t, execute(t, "release"))

	assert.Equal(t, "release", env.profile.Section)
	store := env.stores["release-bucket"]
	require.NotNil(t, store)

	obj, ok := store.Object("a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", string(obj.Data))
	ptr, _ := store.Object(".s3git-rev")
	assert.Equal(t, release, string(ptr.Data))
}

func TestRunSync_WildcardRules(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("index.html", "<html></html>")
	env.repo.Write("notes.md", "notes")
	env.repo.Write(".s3ignore", "# docs\n*.md\n.s3ignore\n")
	env.repo.Commit("initial")

	require.NoError(t, execute(t, "--wildcard"))
	assert.Equal(t, []string{"www/.s3git-rev", "www/index.html"}, env.stores["site-bucket"].Keys())
}

func TestRunSync_FromSubdirectory(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.repo.Dir, config.DefaultSettingsPath), []byte("ignore_file: .syncignore\n"), 0o600))
	env.repo.Write("index.html", "<html></html>")
	env.repo.Write("docs/index.html", "<html>docs</html>")
	env.repo.Write("docs/notes.md", "notes")
	env.repo.Write(".syncignore", ".*\\.md\n\\.syncignore\n")
	target := env.repo.Commit("initial")

	t.Chdir(filepath.Join(env.repo.Dir, "docs"))

	require.NoError(t, execute(t))

	store := env.stores["site-bucket"]
	require.NotNil(t, store)
	assert.Equal(t, []string{"www/.s3git-rev", "www/docs/index.html", "www/index.html"}, store.Keys())
	ptr, _ := store.Object("www/.s3git-rev")
	assert.Equal(t, target, string(ptr.Data))
}

func TestRunSync_InvalidRule(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("a.txt", "alpha")
	env.repo.Write(".s3ignore", "(unclosed\n")
	env.repo.Commit("initial")

	err := execute(t)
	var invalid *ignore.InvalidPatternError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "(unclosed", invalid.Rule)
	assert.Empty(t, env.stores["site-bucket"].Keys())
}

func TestRunSync_DryRun(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("a.txt", "alpha")
	env.repo.Commit("initial")

	require.NoError(t, execute(t, "--dry-run"))
	assert.Empty(t, env.stores["site-bucket"].Keys())
	assert.Contains(t, env.logs.String(), "[A] a.txt")
}

func TestRunSync_MissingRemoteConfig(t *testing.T) {
	env := newCLIEnv(t)
	env.repo.Write("a.txt", "alpha")
	env.repo.Commit("initial")

	err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.cfg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
	assert.Contains(t, err.Error(), "cannot find the configuration file")
}

func TestRunSync_NotARepository(t *testing.T) {
	newCLIEnv(t)
	t.Chdir(t.TempDir())

	err := execute(t)
	var invalid *git.InvalidSourceError
	require.True(t, errors.As(err, &invalid))
}

func TestRunSync_TooManyArgs(t *testing.T) {
	newCLIEnv(t)
	assert.Error(t, execute(t, "a", "b"))
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		remote  config.Remote
		want    any
		wantErr bool
	}{
		{
			name:   "aws",
			remote: config.Remote{Driver: config.DriverAWS, BucketName: "b", AccessKeyID: "i", SecretAccessKey: "s"},
			want:   &remote.S3Store{},
		},
		{
			name:   "aws with endpoint",
			remote: config.Remote{Driver: config.DriverAWS, BucketName: "b", EndpointURL: "http://localhost:4566"},
			want:   &remote.S3Store{},
		},
		{
			name:   "aws with retries",
			remote: config.Remote{Driver: config.DriverAWS, BucketName: "b", MaxRetries: 5},
			want:   &remote.S3Store{},
		},
		{
			name:   "minio",
			remote: config.Remote{Driver: config.DriverMinio, BucketName: "b", EndpointURL: "http://localhost:9000"},
			want:   &remote.MinioStore{},
		},
		{
			name:    "minio with bad endpoint",
			remote:  config.Remote{Driver: config.DriverMinio, BucketName: "b", EndpointURL: "::"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := newStore(context.Background(), &tt.remote)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestIgnoreMode(t *testing.T) {
	orig := wildcard
	t.Cleanup(func() { wildcard = orig })

	wildcard = false
	assert.Equal(t, ignore.Literal, ignoreMode())
	wildcard = true
	assert.Equal(t, ignore.Wildcard, ignoreMode())
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, []string{})
	assert.Contains(t, out.String(), "s3git-sync dev")
	assert.Contains(t, out.String(), "commit: none")
}
