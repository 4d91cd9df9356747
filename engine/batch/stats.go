package batch

import "log/slog"

// FrameStats summarizes one Dispatch and RenderAll cycle.
type FrameStats struct {
	Groups       int
	Pools        int
	Resident     int
	Added        int
	Removed      int
	Fallback     int
	Skipped      int
	Draws        int
	Resized      int
	FullRewrites int
	VertexBytes  int
	TableBytes   int
}

func (s *FrameStats) addGroup(u GroupUpdate) {
	s.Pools += u.Pools
	s.Resident += u.Resident
	s.Added += u.Added
	s.Removed += u.Removed
	s.Skipped += u.Skipped
	s.Resized += u.Resized
	s.FullRewrites += u.FullRewrites
	s.VertexBytes += u.VertexBytes
	s.TableBytes += u.TableBytes
}

// LogValue groups the stats as slog attributes.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("groups", s.Groups),
		slog.Int("pools", s.Pools),
		slog.Int("resident", s.Resident),
		slog.Int("fallback", s.Fallback),
		slog.Int("skipped", s.Skipped),
		slog.Int("draws", s.Draws),
		slog.Int("resized", s.Resized),
		slog.Int("fullRewrites", s.FullRewrites),
		slog.Int("uploadBytes", s.VertexBytes+s.TableBytes),
	)
}
