package controlplane

import (
	"context"
	"encoding/ascii85"
	"os"
	"path/filepath"
	"time"

	"github.com/imxieyi/carp-judge-worker/internal/logging"
)

// runSelfTest injects one synthetic CASE_DATA envelope per *.zip file
// found in dir, a second after connecting, the same smoke-test role
// the original implementation's fake dispatcher played. It is opt-in
// via cmd/worker's -selftest flag / CARP_SELFTEST_ARCHIVE_DIR, and is
// started again on every (re)connect.
func runSelfTest(ctx context.Context, dir string, out chan<- Envelope) {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.S().Warnw("controlplane: selftest archive dir unreadable", "dir", dir, "error", err)
		return
	}

	var cid int64 = 1
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".zip" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logging.S().Warnw("controlplane: selftest archive unreadable", "file", entry.Name(), "error", err)
			continue
		}
		encoded := make([]byte, ascii85.MaxEncodedLen(len(data)))
		n := ascii85.Encode(encoded, data)

		env := Envelope{
			Type:       TypeCaseData,
			CID:        cid,
			CType:      "CARP",
			ArchiveB85: string(encoded[:n]),
		}
		cid++

		select {
		case out <- env:
			logging.S().Infow("controlplane: selftest injected case", "file", entry.Name(), "cid", env.CID)
		case <-ctx.Done():
			return
		}
	}
}
