/*
Package ports defines the interfaces between the orchestration core and its
adapters (process spawning, outbound calls, record persistence), following
Hexagonal Architecture principles.
*/
package ports
