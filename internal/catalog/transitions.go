package catalog

import "cockpit/internal/domain"

// isAllowedTransition encodes the sync lifecycle. Nothing leaves SYNCED.
func isAllowedTransition(from, to domain.SyncState) bool {
	switch from {
	case domain.SyncStateLocal, domain.SyncStateFailed:
		return to == domain.SyncStateUploading
	case domain.SyncStateUploading:
		return to == domain.SyncStateSynced || to == domain.SyncStateFailed
	default:
		return false
	}
}
