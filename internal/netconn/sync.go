// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package netconn

import (
	"fmt"

	"github.com/distantlabs/distant-agent/internal/frame"
	"github.com/distantlabs/distant-agent/internal/protocol"
)

// synchronize runs the post-reconnect replay procedure of spec §4.4.1:
// each side writes its current received_cnt, computes how many frames
// the peer is missing, and replays exactly those frames in original
// order. Replayed frames do not bump sent_cnt (they go through
// WriteReplay, not WriteFrame).
func synchronize(t *frame.Transport) error {
	if err := protocol.WriteSyncCount(t.Conn(), t.Backup.ReceivedCount()); err != nil {
		return fmt.Errorf("writing sync count: %w", err)
	}
	peerReceivedCnt, err := protocol.ReadSyncCount(t.Conn())
	if err != nil {
		return fmt.Errorf("reading peer sync count: %w", err)
	}

	sentCnt := t.Backup.SentCount()
	toReplay := 0
	if sentCnt > peerReceivedCnt {
		toReplay = int(sentCnt - peerReceivedCnt)
	}

	for _, f := range t.Backup.LastN(toReplay) {
		if err := t.WriteReplay(f); err != nil {
			return fmt.Errorf("replaying frame: %w", err)
		}
	}
	return t.TryFlush()
}
