package domain

// ByteRange is one worker's slice of a split download.
// Start and End are inclusive byte offsets; the ranges of a job cover
// [0, total) exactly once, in order.
type ByteRange struct {
	Start int64
	End   int64
}

// Size returns the number of bytes covered by the range.
func (r ByteRange) Size() int64 {
	return r.End - r.Start + 1
}

// FetchResult describes a completed remote fetch.
type FetchResult struct {
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	Size          int64  `json:"size"`
	Multithreaded bool   `json:"multithreaded"`
}

// TransferEvent is one row of the transfer history: a share
// redemption or a completed remote fetch.
type TransferEvent struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Ref       string `json:"ref"`
	Path      string `json:"path"`
	ClientIP  string `json:"client_ip,omitempty"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// Transfer event kinds
const (
	EventShareDownload = "share_download"
	EventRemoteFetch   = "remote_fetch"
)
