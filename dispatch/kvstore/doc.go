// Persistent key/value collaborator used for cooldown records and bot configuration.
//
// Keys are dotted paths, such as `lastTriggered.hello` or `config.botName`. Values are strings; callers own their encoding.
//
// Includes an interface and implementations using in-process memory, redis, a SQL database (via gorm), and a single JSON document on disk.
package kvstore
