package integration

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shellsense/internal/config"
	"shellsense/internal/daemon"
	"shellsense/internal/ipc"
	"shellsense/internal/protocol"
	"shellsense/internal/suggest"
)

func TestPing(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	require.NoError(t, env.Client.Ping())
}

func TestLogThenSearchSameConnection(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	id, err := env.Client.LogCommand("kubectl get pods", "/work", 0, 0.4)
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	records, err := env.Client.History(10, "kubectl")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "kubectl get pods", records[0].Command)
	require.Equal(t, int64(1), records[0].ID)
}

func TestSuggestEndToEnd(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	for i := 0; i < 5; i++ {
		_, err := env.Client.LogCommand("git status", "/repo", 0, 0.1)
		require.NoError(t, err)
	}
	_, err := env.Client.LogCommand("git add .", "/repo", 0, 0.1)
	require.NoError(t, err)

	candidates, err := env.Client.Suggest("git st", "/repo")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	require.Equal(t, "git status", candidates[0].Command)
	require.Equal(t, suggest.TierExact, candidates[0].SourceTier)
	require.InDelta(t, 1.0, candidates[0].Confidence, 0.001)
}

func TestConcurrentClients(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	const clients = 8
	var wg sync.WaitGroup
	errs := make(chan error, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := ipc.Dial(env.Paths)
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			for j := 0; j < 5; j++ {
				if err := c.Ping(); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestSecondDaemonRefused(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	// The socket is live, so a second daemon on the same paths must bail
	// out with the already-running error instead of stealing the socket.
	lock := daemon.NewLockFile(env.Paths.LockFile())
	require.NoError(t, lock.Acquire())
	defer lock.Release()

	second := daemon.NewLockFile(env.Paths.LockFile())
	err := second.Acquire()
	require.ErrorIs(t, err, daemon.ErrAlreadyRunning)
}

func TestPrivacyExclusionOverSocket(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	// Replace synchronizes with the server's config reads.
	next := config.Default()
	next.History.RetentionDays = 0
	next.Privacy.ExcludedDirs = []string{"/secret"}
	env.Config.Replace(next)

	id, err := env.Client.LogCommand("cat key.pem", "/secret/certs", 0, 0.1)
	require.NoError(t, err)
	require.Zero(t, id, "excluded command must not get a record id")

	records, err := env.Client.History(10, "")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestConfigRoundTripOverSocket(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	require.NoError(t, env.Client.SetConfig("suggestions.max_suggestions", "2"))

	value, err := env.Client.GetConfig("suggestions.max_suggestions")
	require.NoError(t, err)
	// JSON numbers decode as float64.
	require.EqualValues(t, 2, value)

	// The new cap applies to live requests.
	for i := 0; i < 6; i++ {
		_, err := env.Client.LogCommand("git log", "/r", 0, 0)
		require.NoError(t, err)
		_, err = env.Client.LogCommand("git lfs", "/r", 0, 0)
		require.NoError(t, err)
		_, err = env.Client.LogCommand("git last", "/r", 0, 0)
		require.NoError(t, err)
	}
	candidates, err := env.Client.Suggest("git l", "/r")
	require.NoError(t, err)
	require.LessOrEqual(t, len(candidates), 2)
}

// A request arriving in multiple transport writes must be reassembled
// before dispatch; message boundaries are the newline, not the write.
func TestSplitWriteReassembled(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	conn, err := net.Dial("unix", env.Paths.SocketFile())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"type":"pi`))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = conn.Write([]byte("ng\"}\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.Equal(t, protocol.StatusOK, resp.Status)
	require.Equal(t, "pong", resp.Message)
}

func TestExplainOverSocket(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	explanation, err := env.Client.Explain("git status")
	require.NoError(t, err)
	require.Contains(t, explanation, "working tree")
}

func TestPruneOverSocket(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	_, err := env.Client.LogCommand("ls", "/", 0, 0)
	require.NoError(t, err)

	pruned, err := env.Client.Prune(time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	records, err := env.Client.History(10, "")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAnalyticsOverSocket(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	_, err := env.Client.LogCommand("make build", "/", 0, 1.0)
	require.NoError(t, err)
	_, err = env.Client.LogCommand("make build", "/", 2, 1.0)
	require.NoError(t, err)

	analytics, err := env.Client.Analytics()
	require.NoError(t, err)
	require.EqualValues(t, 2, analytics.TotalCommands)
	require.EqualValues(t, 1, analytics.DistinctCommands)
	require.InDelta(t, 0.5, analytics.SuccessRate, 0.001)
}

func TestHookSenderDelivers(t *testing.T) {
	env := SetupTestEnv(t)
	defer env.Teardown()

	sender := ipc.NewHookSender(env.Paths.SocketFile())
	sender.SetConnectTimeout(50 * time.Millisecond)
	require.True(t, sender.Send("echo hi", "/", 0, 0.01))

	// Fire-and-forget writes race with the read below; poll briefly.
	require.Eventually(t, func() bool {
		records, err := env.Client.History(10, "")
		return err == nil && len(records) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
