package archive

// Reporter observes the driver at every fetch, skip and link boundary.
type Reporter interface {
	Fetching(kind, id string)
	Skipped(kind, id string)
	Stored(kind, id, path string)
	Page(kind, id, relation string, total *int64, n int)
	Linked(src, dest string)
	Tombstoned(kind, id string)
	ImageFailed(kind, id string, err error)
	EntrySkipped(kind, id, relation string, err error)
}

// LogReporter reports through a Logger.
type LogReporter struct {
	logger Logger
}

func NewLogReporter(logger Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Fetching(kind, id string) {
	r.logger.Debug("fetching", "kind", kind, "id", id)
}

func (r *LogReporter) Skipped(kind, id string) {
	r.logger.Debug("already in store", "kind", kind, "id", id)
}

func (r *LogReporter) Stored(kind, id, path string) {
	r.logger.Info("stored", "kind", kind, "id", id, "path", path)
}

func (r *LogReporter) Page(kind, id, relation string, total *int64, n int) {
	if total != nil {
		r.logger.Debug("page", "kind", kind, "id", id, "relation", relation, "entries", n, "total", *total)
		return
	}
	r.logger.Debug("page", "kind", kind, "id", id, "relation", relation, "entries", n)
}

func (r *LogReporter) Linked(src, dest string) {
	r.logger.Debug("linked", "src", src, "dest", dest)
}

func (r *LogReporter) Tombstoned(kind, id string) {
	r.logger.Info("gone from server", "kind", kind, "id", id)
}

func (r *LogReporter) ImageFailed(kind, id string, err error) {
	r.logger.Warn("image not fetched", "kind", kind, "id", id, "error", err)
}

func (r *LogReporter) EntrySkipped(kind, id, relation string, err error) {
	r.logger.Warn("listing entry skipped", "kind", kind, "id", id, "relation", relation, "error", err)
}

// NopReporter ignores everything. Use in tests.
type NopReporter struct{}

func (NopReporter) Fetching(string, string)                    {}
func (NopReporter) Skipped(string, string)                     {}
func (NopReporter) Stored(string, string, string)              {}
func (NopReporter) Page(string, string, string, *int64, int)   {}
func (NopReporter) Linked(string, string)                      {}
func (NopReporter) Tombstoned(string, string)                  {}
func (NopReporter) ImageFailed(string, string, error)          {}
func (NopReporter) EntrySkipped(string, string, string, error) {}
