package dataset

import "errors"

var (
	ErrNotADataset   = errors.New("dataset: not a dataset")
	ErrProtoDataset  = errors.New("dataset: proto dataset cannot be read")
	ErrNoSuchItem    = errors.New("dataset: no such item")
	ErrNoSuchOverlay = errors.New("dataset: no such overlay")
)

func IsNoSuchItem(err error) bool { return errors.Is(err, ErrNoSuchItem) }
