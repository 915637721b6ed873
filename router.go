/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package corvid

import (
	"fmt"
	"path"
	"reflect"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// MessageContext carries one dispatched command through its handler chain.
type MessageContext struct {
	Conn    *Conn
	Msg     *Message
	handler string
	handled bool
	abort   bool
	err     error
}

// Handled signals to the router to not call the next MessageHandler in the chain if applicable
func (c *MessageContext) Handled() {
	c.handled = true
}

// AbortWithError signals to the router to not call the next MessageHandler in the chain
// if applicable, and to log the error reported
func (c *MessageContext) AbortWithError(err error) {
	c.abort = true
	c.err = err
}

// MessageHandler defines the function signature of a handler used to process IRC messages.
type MessageHandler func(*MessageContext)

// IRouter defines all router handle interface includes single and group router.
type IRouter interface {
	IRoutes
	Group(...MessageHandler) *RouterGroup
}

// IRoutes defines all router handle interface.
type IRoutes interface {
	Use(...MessageHandler) IRoutes
	Handle(string, ...MessageHandler) IRoutes
}

// HandlersChain defines a HandlerFunc slice.
type HandlersChain []MessageHandler

// Last returns the last handler in the chain. i.e. the last handler is the main one.
func (c HandlersChain) Last() MessageHandler {
	if length := len(c); length > 0 {
		return c[length-1]
	}
	return nil
}

// CommandSpec carries the dispatch contract for one command: how many
// parameters it requires at minimum, and whether the connection must
// already be registered or hold operator permission to invoke it.
type CommandSpec struct {
	MinParams            int
	RequiresRegistration bool
	RequiresOperator     bool
}

// commandsAllowedBeforeRegistration lists commands a connection may issue
// before completing NICK/USER/CAP END, regardless of CommandSpec.
var commandsAllowedBeforeRegistration = map[string]bool{
	CmdPing:    true,
	CmdPong:    true,
	CmdCap:     true,
	CmdPass:    true,
	CmdNick:    true,
	CmdUser:    true,
	CmdQuit:    true,
	CmdAuth:    true,
	"WEBIRC":   true,
}

type Router struct {
	logger *logrus.Entry
	RouterGroup
	HandlerMap map[string]HandlersChain
	Specs      map[string]CommandSpec
}

func NewRouter(logger *logrus.Entry) *Router {
	if logger == nil {
		panic("must provide a logger to NewRouter")
	}

	log := logger.WithField("sub-component", "router")
	r := &Router{
		logger:     log,
		HandlerMap: make(map[string]HandlersChain),
		Specs:      make(map[string]CommandSpec),
	}
	r.root = true
	r.router = r
	return r
}

func (router *Router) addHandler(command string, handlers HandlersChain) {
	if command == "" {
		panic("command must not be an empty string")
	}

	if len(handlers) == 0 {
		panic("there must be at least one handler")
	}

	if _, exists := router.HandlerMap[command]; exists {
		panic(fmt.Sprintf("handler(s) already registered for command: %s", command))
	}

	router.HandlerMap[command] = handlers
}

// Use attaches a global middleware to the router. i.e. the middleware attached through Use() will be
// included in the handlers chain for every single command.
// For example, this is the right place for a logger or error management middleware.
func (router *Router) Use(middleware ...MessageHandler) IRoutes {
	router.RouterGroup.Use(middleware...)
	return router
}

// Handle registers a new request handle and middleware with the given name and name.
// The last handler should be the real handler, the other ones should be middleware that can and should be shared among different routes.
func (router *Router) Handle(command string, handlers ...MessageHandler) IRoutes {
	handlers = router.combineHandlers(handlers)
	router.router.addHandler(command, handlers)
	return router.returnRouter()
}

// HandleSpec registers a command's dispatch contract (minimum parameters,
// registration/operator requirements) alongside its handler chain. This is
// the entry point handlers.go's registerHandlers uses.
func (router *Router) HandleSpec(command string, spec CommandSpec, handlers ...MessageHandler) IRoutes {
	router.Specs[command] = spec
	return router.Handle(command, handlers...)
}

// HandlerInfo represents a request route's specification which contains the command and its handler.
type HandlerInfo struct {
	Command  string
	Handlers []string
}

// HandlersInfo defines a HandlerInfo slice.
type HandlersInfo []HandlerInfo

// RouterGroup is used internally to configure router, a RouterGroup is associated with
// a GroupCondition and an array of handlers (middleware).
type RouterGroup struct {
	root     bool
	router   *Router
	Handlers HandlersChain
}

func (group *RouterGroup) combineHandlers(handlers HandlersChain) HandlersChain {
	finalSize := len(group.Handlers) + len(handlers)
	mergedHandlers := make(HandlersChain, finalSize)
	copy(mergedHandlers, group.Handlers)
	copy(mergedHandlers[len(group.Handlers):], handlers)
	return mergedHandlers
}

// Handle registers a new request handle and middleware with the given name and name.
// The last handler should be the real handler, the other ones should be middleware that can
// and should be shared among different routes.
func (group *RouterGroup) Handle(command string, handlers ...MessageHandler) IRoutes {
	handlers = group.combineHandlers(handlers)
	group.router.addHandler(command, handlers)
	return group.returnRouter()
}

// Use adds middleware to the group
func (group *RouterGroup) Use(middleware ...MessageHandler) IRoutes {
	group.Handlers = append(group.Handlers, middleware...)
	return group.returnRouter()
}

func (group *RouterGroup) returnRouter() IRouter {
	if group.root {
		return group.router
	}
	return group
}

// Group creates a new router group. You should add all the routes that have common middlewares.
// For example, all the routes that use a common middleware for authorization could be grouped.
func (group *RouterGroup) Group(handlers ...MessageHandler) *RouterGroup {
	if len(handlers) == 0 {
		panic("a group must have at least one handler")
	}

	newGroup := &RouterGroup{
		Handlers: group.combineHandlers(handlers),
		router:   group.router,
	}

	return newGroup
}

// Handlers returns a slice of registered routes, including some useful information, such as:
// the http name, name and the handler name.
func (router *Router) Handlers() HandlersInfo {
	info := make(HandlersInfo, 0, len(router.HandlerMap))
	for command, handlers := range router.HandlerMap {
		info = append(info, HandlerInfo{
			Command:  command,
			Handlers: getHandlerChain(handlers),
		})
	}
	return info
}

func (router *Router) PrintHandlers() {
	logger := router.logger.WithField("sub-component", "Router")
	logger.Debug("Registered Handlers:")
	handlers := router.Handlers()
	chains := make([]string, 0)
	for i := range handlers {
		if len(handlers[i].Handlers) > 1 {
			chains = append(chains, fmt.Sprintf("| Command: %s \tHandlers: %s", handlers[i].Command, strings.Join(handlers[i].Handlers, " -> ")))
			continue
		}
		router.logger.Debugf("| Command: %s \tHandler: %s", handlers[i].Command, handlers[i].Handlers[0])
	}

	for i := range chains {
		router.logger.Debug(chains[i])
	}
}

func getHandlerChain(handlers HandlersChain) []string {
	chain := make([]string, 0, len(handlers))
	for i := range handlers {
		chain = append(chain, nameOfFunction(handlers[i]))
	}
	return chain
}

func enoughParams(msg *Message, expected int) bool {
	return !(len(msg.Params) < expected)
}

func nameOfFunction(f any) string {
	return path.Base(runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name())
}

// defaultRouter is the package-level router wired up by Warmup/registerHandlers
// and used by the free RouteCommand function called from Conn.readLoop.
var defaultRouter *Router

// RouteCommand accepts an IRC message and routes it to the handler chain
// registered for its command, enforcing the command's registration and
// operator requirements before invoking any handler.
func RouteCommand(conn *Conn, msg *Message) {
	defer msgpool.Recycle(msg)

	router := defaultRouter
	if router == nil {
		return
	}

	entry := router.logger.WithField("command", msg.Command)

	handlers, exists := router.HandlerMap[msg.Command]
	if !exists {
		conn.ReplyNotImplemented(msg.Command)
		entry.Warnf("command not implemented encountered for: %s", msg.Command)
		return
	}

	spec := router.Specs[msg.Command]

	if !conn.registered && !commandsAllowedBeforeRegistration[msg.Command] {
		conn.ReplyNotRegistered()
		return
	}

	if spec.RequiresRegistration && !conn.registered {
		conn.ReplyNotRegistered()
		return
	}

	if spec.RequiresOperator && conn.user.Perm() < UPermNetOp {
		conn.ReplyNotRegistered()
		return
	}

	if spec.MinParams > 0 && !enoughParams(msg, spec.MinParams) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	ctx := &MessageContext{Conn: conn, Msg: msg}

	for i := range handlers {
		ctx.handler = nameOfFunction(handlers[i])
		handlers[i](ctx)
		if ctx.handled {
			return
		}
		if ctx.err != nil {
			entry.Warn(fmt.Errorf("error encountered handling command with handler [%s]: %w", ctx.handler, ctx.err))
		}
		if ctx.abort && len(handlers) > 1 {
			entry.Debugf("command handler chain aborted at: %s", ctx.handler)
			return
		}
	}
}
