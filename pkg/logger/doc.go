// Package logger provides the structured logging interface used across the
// scraper.
//
// It wraps zerolog. Console output goes to stderr so that listings printed on
// stdout stay machine readable; a log file can be configured instead.
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "downloader")
//	log.InfoWithFields("file saved", map[string]interface{}{
//	    "path":  target,
//	    "bytes": n,
//	})
//
// Every process gets a run identifier (see RunID) attached to all entries, so
// a resumed download can be told apart from the attempt that was interrupted.
package logger
