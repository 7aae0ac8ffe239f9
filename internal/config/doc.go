// Package config собирает конфигурацию процессов dbflow.
//
// Значения по умолчанию переопределяются YAML-файлом (путь в DBFLOW_CONFIG),
// файл — переменными окружения. Файл описывает воркеры (driver http, sql,
// redis или delay) и расписания; BuildExecutors превращает описания воркеров
// в worker.Registry.
package config
