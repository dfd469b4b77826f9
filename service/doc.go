// Package service is the single write entry point of the engine. It wraps
// the order book with validation, logging, metrics and the trade drop-copy
// outbox, and stays independent of any console or network front end.
package service
