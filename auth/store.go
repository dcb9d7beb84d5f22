package auth

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Role 区分凭据所属的身份类型。
type Role string

const (
	RoleRelay Role = "relay"
	RolePilot Role = "pilot"
)

// Credential 是按名称索引的凭据记录，仅保存口令的 bcrypt 哈希。
type Credential struct {
	Name         string `yaml:"name"`
	PasswordHash string `yaml:"password_hash"`
}

type credentialsFile struct {
	Relays []Credential `yaml:"relays"`
	Pilots []Credential `yaml:"pilots"`
}

// Store 是凭据查询接口。
type Store interface {
	Lookup(role Role, name string) (Credential, bool)
}

// FileStore 是从 YAML 文件加载的只读凭据库。
type FileStore struct {
	mu    sync.RWMutex
	byKey map[Role]map[string]Credential
}

// LoadFileStore 从 YAML 文件加载凭据库。
// 文件格式：
//
//	relays:
//	  - name: relay_0001
//	    password_hash: $2a$10$...
//	pilots:
//	  - name: alice
//	    password_hash: $2a$10$...
//
// 参数：
// - path: 凭据文件路径
// 返回：
// - *FileStore: 凭据库
// - error: 读取/解析失败或存在重复/空名称
func LoadFileStore(path string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return ParseFileStore(raw)
}

// ParseFileStore 从 YAML 内容构造凭据库。
func ParseFileStore(raw []byte) (*FileStore, error) {
	var f credentialsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	s := &FileStore{byKey: map[Role]map[string]Credential{
		RoleRelay: {},
		RolePilot: {},
	}}
	if err := s.add(RoleRelay, f.Relays); err != nil {
		return nil, err
	}
	if err := s.add(RolePilot, f.Pilots); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) add(role Role, creds []Credential) error {
	for _, c := range creds {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("%s credential with empty name", role)
		}
		if c.PasswordHash == "" {
			return fmt.Errorf("%s credential %q has no password_hash", role, c.Name)
		}
		if _, dup := s.byKey[role][c.Name]; dup {
			return fmt.Errorf("duplicate %s credential %q", role, c.Name)
		}
		s.byKey[role][c.Name] = c
	}
	return nil
}

// Lookup 按身份类型与名称查询凭据。
func (s *FileStore) Lookup(role Role, name string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKey[role][name]
	return c, ok
}

// Len 返回某类身份的凭据数量。
func (s *FileStore) Len(role Role) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey[role])
}
