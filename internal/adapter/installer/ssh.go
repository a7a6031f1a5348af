package installer

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/pkg/crypto"
	"deploy-orchestrator/internal/pkg/logger"
	"deploy-orchestrator/pkg/errors"
)

// outputTailLimit 失败时携带的命令输出长度上限
const outputTailLimit = 1024

// SSHInstaller 通过SSH在目标上执行安装命令
//
// 命令模板支持 {artifact} 和 {version} 占位符, 例如:
//
//	/opt/deploy/install.sh {artifact} {version}
type SSHInstaller struct {
	user    string
	port    int
	command string
	timeout time.Duration
	auth    []ssh.AuthMethod
	logger  *zap.Logger
}

// NewSSHInstaller 创建SSH安装器
func NewSSHInstaller(cfg *config.InstallerConfig) (*SSHInstaller, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("installer.command 未配置")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("installer.user 未配置")
	}

	var auth []ssh.AuthMethod
	if cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("读取SSH私钥失败: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("解析SSH私钥失败: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.PasswordEncrypted != "" {
		password, err := crypto.Decrypt(cfg.PasswordEncrypted)
		if err != nil {
			return nil, fmt.Errorf("解密SSH密码失败: %w", err)
		}
		auth = append(auth, ssh.Password(password))
	} else if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("installer 未配置任何SSH认证方式")
	}

	port := cfg.Port
	if port <= 0 {
		port = 22
	}

	return &SSHInstaller{
		user:    cfg.User,
		port:    port,
		command: cfg.Command,
		timeout: config.ParseDuration(cfg.Timeout, 5*time.Minute),
		auth:    auth,
		logger:  logger.Named("installer"),
	}, nil
}

// Install 在目标上执行安装命令
func (s *SSHInstaller) Install(ctx context.Context, target *model.Target, artifact, version string) error {
	command := strings.NewReplacer(
		"{artifact}", artifact,
		"{version}", version,
	).Replace(s.command)

	addr := s.sshAddr(target.Address)
	s.logger.Info("执行安装命令",
		zap.String("target", target.Name),
		zap.String("addr", addr),
		zap.String("version", version))

	client, err := s.dial(ctx, addr)
	if err != nil {
		return errors.Wrap(errors.CodeInstall, fmt.Sprintf("连接目标失败: %s", target.Name), err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return errors.Wrap(errors.CodeInstall, fmt.Sprintf("创建SSH会话失败: %s", target.Name), err)
	}
	defer session.Close()

	type execResult struct {
		output []byte
		err    error
	}
	done := make(chan execResult, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		done <- execResult{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		// 断开连接终止远端会话
		client.Close()
		return errors.Wrap(errors.CodeInstall, fmt.Sprintf("安装命令被中断: %s", target.Name), ctx.Err())
	case res := <-done:
		if res.err != nil {
			return errors.Wrap(errors.CodeInstall,
				fmt.Sprintf("安装命令失败: %s, 输出: %s", target.Name, tail(res.output)), res.err)
		}
	}

	s.logger.Info("安装命令完成", zap.String("target", target.Name), zap.String("version", version))
	return nil
}

// dial 建立SSH连接, 受 ctx 和配置超时双重约束
func (s *SSHInstaller) dial(ctx context.Context, addr string) (*ssh.Client, error) {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); remain < timeout {
			timeout = remain
		}
	}

	clientConfig := &ssh.ClientConfig{
		User: s.user,
		Auth: s.auth,
		// TODO: 接入 known_hosts 校验
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// sshAddr 把目标服务地址换成SSH地址(同主机, SSH端口)
func (s *SSHInstaller) sshAddr(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	return net.JoinHostPort(host, strconv.Itoa(s.port))
}

// tail 截取命令输出尾部
func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > outputTailLimit {
		text = "..." + text[len(text)-outputTailLimit:]
	}
	return text
}
