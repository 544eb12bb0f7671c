package browser

import "fmt"

// bridgeScript is installed in every document the session loads. It queues
// trusted form events (captured on window so page handlers cannot stop
// them), snapshots the tree when it changed since the last event, and exposes
// the primitive operations replay needs, addressed by element-child path.
const bridgeScript = `
(function() {
	if (window.__formfiller) return;

	var ids = new WeakMap();
	var nextID = 1;
	var dirty = true;
	var queue = [];
	var snapshots = [];

	function idOf(el) {
		var id = ids.get(el);
		if (!id) { id = nextID++; ids.set(el, id); }
		return id;
	}

	function pathOf(el) {
		var path = [];
		while (el && el !== document.documentElement && el.parentElement) {
			path.unshift(Array.prototype.indexOf.call(el.parentElement.children, el));
			el = el.parentElement;
		}
		return el === document.documentElement ? path : null;
	}

	function byPath(path) {
		var el = document.documentElement;
		for (var i = 0; el && i < path.length; i++) { el = el.children[path[i]]; }
		return el || null;
	}

	function stateOf(el) {
		var r = el.getBoundingClientRect();
		var s = {id: idOf(el), r: [r.x, r.y, r.width, r.height]};
		var tag = el.tagName;
		if (tag === 'INPUT' || tag === 'TEXTAREA' || tag === 'SELECT') {
			s.v = el.value;
			s.c = !!el.checked;
			if (tag === 'SELECT') s.s = el.selectedIndex;
			if (el.files) {
				s.f = Array.prototype.map.call(el.files, function(f) { return {name: f.name, size: f.size, type: f.type}; });
			}
		}
		return s;
	}

	function snapshot() {
		var all = [document.documentElement].concat(Array.prototype.slice.call(document.documentElement.querySelectorAll('*')));
		return {url: location.href, html: document.documentElement.outerHTML, nodes: all.map(stateOf)};
	}

	new MutationObserver(function() { dirty = true; }).observe(document, {subtree: true, childList: true, attributes: true});

	var types = ['click', 'input', 'change', 'submit', 'focus', 'keydown', 'mousedown'];
	types.forEach(function(type) {
		window.addEventListener(type, function(ev) {
			if (!ev.isTrusted || !(ev.target instanceof Element)) return;
			var path = pathOf(ev.target);
			if (!path) return;
			if (dirty || snapshots.length === 0) {
				snapshots.push(snapshot());
				dirty = false;
			}
			var item = {type: type, path: path, snapshot: snapshots.length - 1, target: stateOf(ev.target)};
			if (ev.key) item.key = ev.key;
			if (ev.submitter) item.submitter = pathOf(ev.submitter);
			queue.push(item);
		}, true);
	});

	function nativeSetter(el, prop) {
		var proto = Object.getPrototypeOf(el);
		while (proto) {
			var d = Object.getOwnPropertyDescriptor(proto, prop);
			if (d && d.set) return d.set;
			proto = Object.getPrototypeOf(proto);
		}
		return null;
	}

	var ops = {
		scroll: function(el) { el.scrollIntoView({block: 'center', inline: 'center'}); },
		value: function(el, arg) { nativeSetter(el, 'value').call(el, arg); },
		checked: function(el, arg) { nativeSetter(el, 'checked').call(el, arg === 'true'); },
		select: function(el, arg) { nativeSetter(el, 'selectedIndex').call(el, parseInt(arg, 10)); },
		dispatch: function(el, arg) {
			var ev;
			if (arg.indexOf('key') === 0) ev = new KeyboardEvent(arg, {bubbles: true, cancelable: true});
			else if (arg === 'focus' || arg === 'blur') ev = new FocusEvent(arg);
			else ev = new Event(arg, {bubbles: true});
			el.dispatchEvent(ev);
		},
		click: function(el) {
			el.dispatchEvent(new PointerEvent('pointerdown', {bubbles: true}));
			el.dispatchEvent(new PointerEvent('pointerup', {bubbles: true}));
			el.click();
		},
		highlight: function(el, arg) {
			var prev = el.style.outline;
			el.style.outline = '3px solid ' + arg;
			setTimeout(function() { el.style.outline = prev; }, 600);
		}
	};

	window.__formfiller = {
		drain: function() {
			var out = {url: location.href, events: queue, snapshots: snapshots};
			queue = [];
			snapshots = [];
			dirty = true;
			return out;
		},
		snapshot: snapshot,
		op: function(name, path, arg) {
			var el = byPath(path);
			if (!el) return {ok: false, error: 'detached'};
			try { ops[name](el, arg); } catch (e) { return {ok: false, error: String(e)}; }
			return {ok: true};
		},
		overlay: function(cls, text) {
			var box = document.querySelector('.' + cls);
			if (text === '') { if (box) box.remove(); return {ok: true}; }
			if (!box) {
				box = document.createElement('div');
				box.className = cls;
				box.style.cssText = 'position:fixed;top:12px;right:12px;z-index:2147483647;padding:8px 14px;' +
					'background:#111827;color:#fff;font:13px sans-serif;border-radius:6px;pointer-events:none';
				document.body.appendChild(box);
			}
			box.textContent = text;
			return {ok: true};
		}
	};
})();
`

// opExpr renders a call to one bridge operation.
func opExpr(name string, path []int, arg string) string {
	return fmt.Sprintf(`window.__formfiller.op(%s, %s, %s)`, jsString(name), jsInts(path), jsString(arg))
}

func overlayExpr(class, text string) string {
	return fmt.Sprintf(`window.__formfiller.overlay(%s, %s)`, jsString(class), jsString(text))
}

// Between navigations the bridge may not be installed yet.
const drainExpr = `window.__formfiller ? window.__formfiller.drain() : {events: [], snapshots: []}`

const snapshotExpr = `window.__formfiller.snapshot()`
