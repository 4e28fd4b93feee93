package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webriots/corun"
)

func TestLoad(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "echo.toml")
	r.NoError(os.WriteFile(path, []byte(`
listen = "0.0.0.0:9000"

[workers]
count = 3
threads = "os"
priority = "low"
cpus = [0, 1]
detach = true

[conn]
idle_timeout = "5s"
`), 0644))

	c, err := Load(path)
	r.NoError(err)
	r.Equal("0.0.0.0:9000", c.Listen)
	r.Equal(3, c.WorkerCount())
	r.Equal(Duration(5*time.Second), c.Conn.IdleTimeout)
	r.Equal(4096, c.Conn.BufferSize)

	l, attr := c.Launcher()
	r.Equal(corun.OSThreads, l)
	r.Equal(corun.PriorityLow, attr.Priority)
	r.Equal(corun.CPUSet{0, 1}, attr.Affinity)
	r.Equal(corun.DtorDetach, attr.DtorAction)
}

func TestDefault(t *testing.T) {
	r := require.New(t)

	c, err := Parse(nil)
	r.NoError(err)
	r.Equal(Default(), c)
	r.Equal(corun.HardwareConcurrency(), c.WorkerCount())

	l, attr := c.Launcher()
	r.Equal(corun.Goroutines, l)
	r.Equal(corun.Attributes{}, attr)
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":      `listn = "x"`,
		"bad duration":     "[conn]\nidle_timeout = \"soon\"",
		"bad threads":      "[workers]\nthreads = \"fibers\"",
		"bad priority":     "[workers]\nthreads = \"os\"\npriority = \"urgent\"",
		"goroutine tuning": "[workers]\ncpus = [0]",
		"negative count":   "[workers]\ncount = -1",
		"zero buffer":      "[conn]\nbuffer_size = 0",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalRoundTrip(t *testing.T) {
	r := require.New(t)

	c := Default()
	c.Conn.IdleTimeout = Duration(90 * time.Second)
	data, err := c.Marshal()
	r.NoError(err)
	r.Contains(string(data), `idle_timeout = '1m30s'`)

	back, err := Parse(data)
	r.NoError(err)
	r.Equal(c, back)
}
