// Package registry хранит воркеры и их здоровье.
//
// Включает:
//   - Registry      — дескрипторы воркеров; здоровье меняет одна writer-горутина
//   - HealthGate    — решение "можно ли отправлять task на воркер"
//   - HealthMonitor — периодические проверки воркеров (ticker + канал обновлений)
//
// Здоровье читается без блокировок горячего пути и может немного отставать
// от реальности: gate — это оптимизация, а не гарантия безопасности.
package registry
