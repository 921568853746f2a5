package producertest

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doAppend(t *testing.T, ms *MockServer, path, producerID string, epoch, seq int64, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ms.URL()+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Producer-Id", producerID)
	req.Header.Set("Producer-Epoch", itoa(epoch))
	req.Header.Set("Producer-Seq", itoa(seq))
	resp, err := ms.HTTPClient().Do(req)
	require.NoError(t, err)
	return resp
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestMockServerAcceptsFirstSequence(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")

	resp := doAppend(t, ms, "/s", "p1", 0, 0, `["a"]`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, ms.AppendCount("/s"))
}

func TestMockServerDedupsExactRepeat(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")

	doAppend(t, ms, "/s", "p1", 0, 0, `["a"]`)
	resp := doAppend(t, ms, "/s", "p1", 0, 0, `["a"]`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, ms.AppendCount("/s"))
}

func TestMockServerReportsGap(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")

	resp := doAppend(t, ms, "/s", "p1", 0, 2, `["c"]`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("Producer-Expected-Seq"))
	assert.Equal(t, "2", resp.Header.Get("Producer-Received-Seq"))
	assert.Equal(t, 0, ms.AppendCount("/s"))
}

func TestMockServerRejectsStaleEpoch(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")
	ms.ForceEpoch("/s", "p1", 5)

	resp := doAppend(t, ms, "/s", "p1", 2, 0, `["a"]`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Producer-Epoch"))
}

func TestMockServerAcceptsEpochBumpWithSeqZero(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")
	ms.ForceEpoch("/s", "p1", 1)

	resp := doAppend(t, ms, "/s", "p1", 2, 0, `["a"]`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMockServerRejectsEpochBumpWithNonZeroSeq(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")
	ms.ForceEpoch("/s", "p1", 1)

	resp := doAppend(t, ms, "/s", "p1", 2, 3, `["a"]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMockServerReportsStreamClosed(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")
	ms.ForceClose("/s")

	resp := doAppend(t, ms, "/s", "p1", 0, 0, `["a"]`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Stream-Closed"))
}

func TestMockServerReportsContentTypeMismatch(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/octet-stream")

	req, err := http.NewRequest(http.MethodPost, ms.URL()+"/s", bytes.NewBufferString("raw"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Producer-Id", "p1")
	req.Header.Set("Producer-Epoch", "0")
	req.Header.Set("Producer-Seq", "0")
	resp, err := ms.HTTPClient().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMockServerRejectsMissingProducerHeaders(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")

	req, err := http.NewRequest(http.MethodPost, ms.URL()+"/s", bytes.NewBufferString(`["a"]`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ms.HTTPClient().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMockServerBlockNextAppendParksAndReleases(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()
	ms.CreateStream("/s", "application/json")

	hit, release := ms.BlockNextAppend("/s")

	type result struct {
		resp *http.Response
		err  error
	}
	respCh := make(chan result, 1)
	go func() {
		req, err := http.NewRequest(http.MethodPost, ms.URL()+"/s", bytes.NewBufferString(`["a"]`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Producer-Id", "p1")
		req.Header.Set("Producer-Epoch", "0")
		req.Header.Set("Producer-Seq", "0")
		resp, err := ms.HTTPClient().Do(req)
		respCh <- result{resp, err}
	}()

	<-hit
	assert.Equal(t, 0, ms.AppendCount("/s"))

	// A second, ungated append on the same stream proceeds without
	// waiting on the parked request.
	resp2 := doAppend(t, ms, "/s", "p1", 0, 1, `["b"]`)
	assert.Equal(t, http.StatusConflict, resp2.StatusCode)

	release()
	r := <-respCh
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.resp.StatusCode)
}

func TestMockServerNotFound(t *testing.T) {
	ms := NewMockServer()
	defer ms.Close()

	resp := doAppend(t, ms, "/missing", "p1", 0, 0, `["a"]`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
