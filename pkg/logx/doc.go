// Package logx is stockbot's structured logging layer.
//
// A thin wrapper (logx.Logger) over zerolog:
//   - console output with short timestamp and caller
//   - JSON file output rotated by lumberjack
//   - optional Telegram sink with a minimum level and a send rate cap
package logx
