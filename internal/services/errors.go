package services

import "errors"

var (
	ErrCardNotFound       = errors.New("card not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrScanNotFound       = errors.New("scanned card not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrConfigNotFound     = errors.New("sorting config not found")
	ErrConfigExists       = errors.New("sorting config already exists")
)
